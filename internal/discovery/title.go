package discovery

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Music video titles usually follow "Artist - Song (Official Video)". The
// decorations below add nothing to a karaoke title and confuse search.
var decorationPattern = regexp.MustCompile(`(?i)\s*[\(\[][^)\]]*(official|video|audio|lyric|lyrics|visualizer|hd|4k|remaster)[^)\]]*[\)\]]`)

var titleCaser = cases.Title(language.English, cases.NoLower)

// SplitArtistTitle derives the artist and song title from a raw video title,
// falling back to the channel name when the title has no separator.
func SplitArtistTitle(rawTitle, channel string) (artist, title string) {
	cleaned := CleanTitle(rawTitle)

	for _, separator := range []string{" - ", " – ", " — ", ": "} {
		if idx := strings.Index(cleaned, separator); idx > 0 {
			artist = strings.TrimSpace(cleaned[:idx])
			title = strings.TrimSpace(cleaned[idx+len(separator):])
			if artist != "" && title != "" {
				return artist, title
			}
		}
	}

	return channelArtist(channel), cleaned
}

// CleanTitle strips promotional decorations and collapses whitespace.
func CleanTitle(rawTitle string) string {
	cleaned := decorationPattern.ReplaceAllString(rawTitle, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// channelArtist turns an uploader channel name into an artist guess.
// Auto-generated channels use "Artist - Topic"; label channels append VEVO.
func channelArtist(channel string) string {
	name := strings.TrimSpace(channel)
	name = strings.TrimSuffix(name, " - Topic")
	if trimmed := strings.TrimSuffix(name, "VEVO"); trimmed != name {
		name = titleCaser.String(strings.TrimSpace(trimmed))
	}
	return strings.TrimSpace(name)
}
