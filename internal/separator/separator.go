// Package separator implements the stage that splits downloaded audio into
// vocal and instrumental stems.
package separator

import (
	"context"
	"path/filepath"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/demucs"
	"songforge/internal/songs"
	"songforge/internal/stage"
)

// Separator runs source separation over the downloaded track.
type Separator struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *demucs.Service
}

// New constructs the separation stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Separator {
	return NewWithService(cfg, logger, demucs.New(cfg.Separation.Binary, cfg.Separation.Model))
}

// NewWithService allows injecting the separation service (used in tests).
func NewWithService(cfg *config.Config, logger *slog.Logger, service *demucs.Service) *Separator {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "separator"))
	}
	return &Separator{cfg: cfg, logger: stageLogger, service: service}
}

func (s *Separator) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, s.logger)
	if song.Artifacts.AudioPath == "" {
		return services.Wrap(services.ErrValidation, "separating", "validate inputs", "no downloaded audio to separate; run the download stage first", nil)
	}
	logger.Info("starting separation",
		logging.String("audio_path", song.Artifacts.AudioPath),
		logging.String("model", s.cfg.Separation.Model),
	)
	return nil
}

func (s *Separator) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, s.logger)

	outputDir := filepath.Join(s.cfg.Paths.WorkDir, song.VideoID, "stems")
	result, err := s.service.Separate(ctx, song.Artifacts.AudioPath, outputDir)
	if err != nil {
		return songs.StageSuccess{}, err
	}

	logger.Info("separation completed",
		logging.String("vocals_path", result.VocalsPath),
		logging.String("instrumental_path", result.InstrumentalPath),
	)
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{
			VocalsPath:       result.VocalsPath,
			InstrumentalPath: result.InstrumentalPath,
		},
	}, nil
}

// HealthCheck verifies the demucs binary is reachable.
func (s *Separator) HealthCheck(ctx context.Context) stage.Health {
	const name = "separator"
	if s.cfg == nil || strings.TrimSpace(s.cfg.Paths.WorkDir) == "" {
		return stage.Unhealthy(name, "work directory not configured")
	}
	if err := s.service.Available(); err != nil {
		return stage.Unhealthy(name, services.Details(err))
	}
	return stage.Healthy(name)
}
