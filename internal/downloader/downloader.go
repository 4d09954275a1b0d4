// Package downloader implements the stage that fetches a song's audio track
// from YouTube.
package downloader

import (
	"context"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/ytdlp"
	"songforge/internal/songs"
	"songforge/internal/stage"
)

// Downloader fetches the source audio as WAV via yt-dlp.
type Downloader struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *ytdlp.Service
}

// New constructs the download stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Downloader {
	return NewWithService(cfg, logger, ytdlp.New(cfg.Paths.DownloadDir))
}

// NewWithService allows injecting the download service (used in tests).
func NewWithService(cfg *config.Config, logger *slog.Logger, service *ytdlp.Service) *Downloader {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "downloader"))
	}
	return &Downloader{cfg: cfg, logger: stageLogger, service: service}
}

func (d *Downloader) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, d.logger)
	if strings.TrimSpace(song.URL) == "" {
		return services.Wrap(services.ErrValidation, "downloading", "validate inputs", "song has no source URL", nil)
	}
	logger.Info("starting download",
		logging.String("title", song.Title),
		logging.String("url", song.URL),
	)
	return nil
}

func (d *Downloader) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, d.logger)

	audioPath, err := d.service.Download(ctx, song.VideoID, song.URL)
	if err != nil {
		return songs.StageSuccess{}, err
	}

	logger.Info("download completed", logging.String("audio_path", audioPath))
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{AudioPath: audioPath},
	}, nil
}

// HealthCheck verifies the download directory is configured.
func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	const name = "downloader"
	if d.cfg == nil || strings.TrimSpace(d.cfg.Paths.DownloadDir) == "" {
		return stage.Unhealthy(name, "download directory not configured")
	}
	return stage.Healthy(name)
}
