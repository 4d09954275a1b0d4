package subtitles

import (
	"fmt"
	"os"
	"strings"
)

// KaraokeStyle carries the visual parameters for the generated ASS file.
type KaraokeStyle struct {
	PlayResX       int
	PlayResY       int
	FontName       string
	FontSize       int
	PrimaryColor   string
	HighlightColor string
	BorderSize     int
	ShadowDepth    int
	FadeInMs       int
	FadeOutMs      int
}

func (s KaraokeStyle) withDefaults() KaraokeStyle {
	if s.PlayResX <= 0 {
		s.PlayResX = 1920
	}
	if s.PlayResY <= 0 {
		s.PlayResY = 1080
	}
	if s.FontName == "" {
		s.FontName = "Arial"
	}
	if s.FontSize <= 0 {
		s.FontSize = 48
	}
	if s.PrimaryColor == "" {
		s.PrimaryColor = "&H00FFFFFF"
	}
	if s.HighlightColor == "" {
		s.HighlightColor = "&H0000D7FF"
	}
	return s
}

// WriteKaraokeASS renders cues into an ASS subtitle file with per-word
// highlight timing. Each word gets an equal share of the cue's duration via
// \k tags; the whole line fades in and out.
func WriteKaraokeASS(path string, cues []Cue, style KaraokeStyle) error {
	if len(cues) == 0 {
		return fmt.Errorf("write ass: no cues")
	}
	style = style.withDefaults()

	var builder strings.Builder
	fmt.Fprintf(&builder, `[Script Info]
Title: Karaoke Lyrics
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0
ScaledBorderAndShadow: yes
YCbCr Matrix: TV.709

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Karaoke,%s,%d,%s,%s,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,%d,%d,2,50,50,80,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`,
		style.PlayResX, style.PlayResY,
		style.FontName, style.FontSize, style.PrimaryColor, style.HighlightColor,
		style.BorderSize, style.ShadowDepth,
	)

	for _, cue := range cues {
		text := karaokeText(cue, style.FadeInMs, style.FadeOutMs)
		if text == "" {
			continue
		}
		fmt.Fprintf(&builder, "Dialogue: 0,%s,%s,Karaoke,,0,0,0,,%s\n",
			formatASSTime(cue.Start), formatASSTime(cue.End), text)
	}

	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("write ass: %w", err)
	}
	return nil
}

func karaokeText(cue Cue, fadeInMs, fadeOutMs int) string {
	words := strings.Fields(cue.Text)
	if len(words) == 0 {
		return ""
	}
	duration := cue.End - cue.Start
	if duration < 0 {
		duration = 0
	}
	perWordCentis := int(duration / float64(len(words)) * 100)

	var builder strings.Builder
	fmt.Fprintf(&builder, "{\\fad(%d,%d)}", fadeInMs, fadeOutMs)
	for i, word := range words {
		fmt.Fprintf(&builder, "{\\k%d}%s", perWordCentis, word)
		if i < len(words)-1 {
			builder.WriteByte(' ')
		}
	}
	return builder.String()
}

// formatASSTime renders seconds as the H:MM:SS.CC format ASS expects.
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	centis := int((seconds - float64(total)) * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d", total/3600, (total%3600)/60, total%60, centis)
}
