// Package uploader implements the stage that publishes rendered karaoke
// videos to YouTube.
package uploader

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/youtube"
	"songforge/internal/songs"
	"songforge/internal/stage"
)

// Client is the subset of the YouTube API the uploader needs.
type Client interface {
	Upload(ctx context.Context, req youtube.UploadRequest) (string, error)
}

// Uploader publishes the final video.
type Uploader struct {
	cfg    *config.Config
	logger *slog.Logger
	client Client
}

// New constructs the upload stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Uploader {
	client := youtube.NewClient(cfg.YouTube.APIKey,
		youtube.WithAccessToken(cfg.Upload.AccessToken),
		youtube.WithBaseURL(cfg.YouTube.BaseURL),
	)
	return NewWithClient(cfg, logger, client)
}

// NewWithClient allows injecting the YouTube client (used in tests).
func NewWithClient(cfg *config.Config, logger *slog.Logger, client Client) *Uploader {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "uploader"))
	}
	return &Uploader{cfg: cfg, logger: stageLogger, client: client}
}

func (u *Uploader) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, u.logger)
	if !u.cfg.Upload.Enabled {
		return services.Wrap(services.ErrConfiguration, "uploading", "validate inputs", "upload stage invoked while uploads are disabled", nil)
	}
	if song.Artifacts.VideoPath == "" {
		return services.Wrap(services.ErrValidation, "uploading", "validate inputs", "no rendered video to upload; run the render stage first", nil)
	}
	logger.Info("starting upload",
		logging.String("video_path", song.Artifacts.VideoPath),
		logging.String("privacy", u.cfg.Upload.PrivacyStatus),
	)
	return nil
}

func (u *Uploader) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, u.logger)

	request := youtube.UploadRequest{
		VideoPath:     song.Artifacts.VideoPath,
		Title:         videoTitle(song),
		Description:   videoDescription(song),
		Tags:          videoTags(song, u.cfg.Upload.Tags),
		CategoryID:    u.cfg.Upload.CategoryID,
		PrivacyStatus: u.cfg.Upload.PrivacyStatus,
	}
	uploadID, err := u.client.Upload(ctx, request)
	if err != nil {
		return songs.StageSuccess{}, err
	}

	logger.Info("upload completed",
		logging.String("upload_id", uploadID),
		logging.String("watch_url", "https://www.youtube.com/watch?v="+uploadID),
	)
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{UploadID: uploadID},
	}, nil
}

func videoTitle(song *songs.Song) string {
	return fmt.Sprintf("%s - Karaoke Version (Lyrics)", song.Title)
}

func videoDescription(song *songs.Song) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Karaoke version of %s", song.Title)
	if song.Artist != "" {
		fmt.Fprintf(&builder, " by %s", song.Artist)
	}
	builder.WriteString("\n\nSing along with word-by-word synchronized lyrics.\n")
	builder.WriteString("\nFeatures:\n")
	builder.WriteString("- Instrumental track\n")
	builder.WriteString("- Word-level highlighted lyrics\n")
	builder.WriteString("- Audio visualizer\n")
	return builder.String()
}

func videoTags(song *songs.Song, configured []string) []string {
	tags := make([]string, 0, len(configured)+2)
	tags = append(tags, configured...)
	if artist := tagToken(song.Artist); artist != "" {
		tags = append(tags, artist)
	}
	if title := tagToken(song.Title); title != "" {
		if len(title) > 20 {
			title = title[:20]
		}
		tags = append(tags, title)
	}
	return tags
}

func tagToken(value string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), " ", ""))
}

// HealthCheck verifies upload credentials are configured.
func (u *Uploader) HealthCheck(ctx context.Context) stage.Health {
	const name = "uploader"
	if u.cfg == nil || !u.cfg.Upload.Enabled {
		return stage.Unhealthy(name, "uploads disabled")
	}
	if strings.TrimSpace(u.cfg.Upload.AccessToken) == "" {
		return stage.Unhealthy(name, "oauth access token not configured")
	}
	return stage.Healthy(name)
}
