package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/discovery"
	"songforge/internal/services/ytdlp"
	"songforge/internal/songs"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var titleFlag string
	var artistFlag string

	cmd := &cobra.Command{
		Use:   "add <url-or-video-id>",
		Short: "Enqueue a song for karaoke processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, watchURL, err := parseVideoRef(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				input := songs.NewSong{
					VideoID: videoID,
					URL:     watchURL,
					Title:   strings.TrimSpace(titleFlag),
					Artist:  strings.TrimSpace(artistFlag),
				}

				if input.Title == "" {
					service := ytdlp.New(cfg.Paths.DownloadDir)
					meta, err := service.FetchMetadata(cmd.Context(), watchURL)
					if err != nil {
						return fmt.Errorf("fetch video metadata (or pass --title): %w", err)
					}
					artist, title := discovery.SplitArtistTitle(meta.Title, meta.BestArtist())
					input.Title = title
					input.Channel = meta.Channel
					if input.Artist == "" {
						input.Artist = artist
					}
				}

				song, err := store.Add(cmd.Context(), input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s - %s (%s)\n", song.Artist, song.Title, song.VideoID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&titleFlag, "title", "", "Song title (skips the metadata probe)")
	cmd.Flags().StringVar(&artistFlag, "artist", "", "Artist name override")
	return cmd
}

// parseVideoRef accepts a bare 11-character video ID, a youtube.com watch
// URL, or a youtu.be short link.
func parseVideoRef(ref string) (videoID, watchURL string, err error) {
	ref = strings.TrimSpace(ref)
	if videoIDPattern.MatchString(ref) {
		return ref, "https://www.youtube.com/watch?v=" + ref, nil
	}

	parsed, parseErr := url.Parse(ref)
	if parseErr != nil || parsed.Host == "" {
		return "", "", fmt.Errorf("not a video id or url: %q", ref)
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := parsed.Query().Get("v"); videoIDPattern.MatchString(id) {
			return id, ref, nil
		}
		if rest, ok := strings.CutPrefix(parsed.Path, "/shorts/"); ok {
			if id := strings.Trim(rest, "/"); videoIDPattern.MatchString(id) {
				return id, ref, nil
			}
		}
	case "youtu.be":
		if id := strings.Trim(parsed.Path, "/"); videoIDPattern.MatchString(id) {
			return id, ref, nil
		}
	}
	return "", "", fmt.Errorf("could not extract a video id from %q", ref)
}
