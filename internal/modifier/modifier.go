// Package modifier implements the stage that applies subtle pitch, tempo,
// and tone changes to the instrumental stem.
package modifier

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/ffmpeg"
	"songforge/internal/songs"
	"songforge/internal/stage"
)

const (
	minTempoFactor = 0.97
	maxTempoFactor = 1.03
	maxPitchShift  = 1.0
)

// Modifier reworks the instrumental so the output is not byte-identical to
// the separated stem.
type Modifier struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *ffmpeg.Service
	pickDir func() float64
}

// New constructs the modification stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Modifier {
	return NewWithService(cfg, logger, ffmpeg.New(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
}

// NewWithService allows injecting the ffmpeg service (used in tests).
func NewWithService(cfg *config.Config, logger *slog.Logger, service *ffmpeg.Service) *Modifier {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "modifier"))
	}
	return &Modifier{
		cfg:     cfg,
		logger:  stageLogger,
		service: service,
		pickDir: randomDirection,
	}
}

// WithDirection fixes the random modification direction (used in tests).
func (m *Modifier) WithDirection(dir float64) {
	m.pickDir = func() float64 { return dir }
}

func randomDirection() float64 {
	if rand.Intn(2) == 0 {
		return -1
	}
	return 1
}

func (m *Modifier) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, m.logger)
	if song.Artifacts.InstrumentalPath == "" {
		return services.Wrap(services.ErrValidation, "modifying", "validate inputs", "no instrumental stem to modify; run the separation stage first", nil)
	}
	logger.Info("starting modification",
		logging.String("instrumental_path", song.Artifacts.InstrumentalPath),
		logging.Bool("enabled", m.cfg.Modification.Enabled),
	)
	return nil
}

func (m *Modifier) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, m.logger)

	// With modification disabled the untouched instrumental is the stage's
	// artifact, so the pipeline can still advance.
	if !m.cfg.Modification.Enabled {
		logger.Info("modification disabled, passing instrumental through")
		return songs.StageSuccess{
			Artifacts: songs.Artifacts{ModifiedPath: song.Artifacts.InstrumentalPath},
		}, nil
	}

	opts := m.buildOptions()
	output := filepath.Join(m.cfg.Paths.WorkDir, song.VideoID, "instrumental_modified.wav")
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return songs.StageSuccess{}, services.Wrap(services.ErrConfiguration, "modifying", "modify", "create work directory", err)
	}
	if err := m.service.ModifyAudio(ctx, song.Artifacts.InstrumentalPath, output, opts); err != nil {
		return songs.StageSuccess{}, err
	}

	logger.Info("modification completed",
		logging.String("modified_path", output),
		logging.Float64("pitch_semitones", opts.PitchSemitones),
		logging.Float64("tempo_factor", opts.TempoFactor),
	)
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{ModifiedPath: output},
	}, nil
}

// buildOptions resolves the configured magnitudes into signed, clamped
// transform parameters. Direction is randomized per song so outputs differ
// between runs.
func (m *Modifier) buildOptions() ffmpeg.ModifyOptions {
	var opts ffmpeg.ModifyOptions

	if shift := m.cfg.Modification.PitchShiftSemitones; shift > 0 {
		semitones := m.pickDir() * shift
		opts.PitchSemitones = clamp(semitones, -maxPitchShift, maxPitchShift)
	}
	if change := m.cfg.Modification.TempoChangePercent; change > 0 {
		factor := 1.0 + m.pickDir()*change/100
		opts.TempoFactor = clamp(factor, minTempoFactor, maxTempoFactor)
	}
	opts.ApplyFilter = m.cfg.Modification.ApplyFilter
	return opts
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// HealthCheck verifies ffmpeg is reachable.
func (m *Modifier) HealthCheck(ctx context.Context) stage.Health {
	const name = "modifier"
	if m.cfg == nil || strings.TrimSpace(m.cfg.Paths.WorkDir) == "" {
		return stage.Unhealthy(name, "work directory not configured")
	}
	if err := m.service.Available(); err != nil {
		return stage.Unhealthy(name, services.Details(err))
	}
	return stage.Healthy(name)
}
