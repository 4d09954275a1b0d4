// Package renderer implements the stage that composes the final karaoke
// video from the modified instrumental, the subtitle file, and a background.
package renderer

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

var backgroundExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".mp4": {}, ".mov": {},
}

// Renderer produces the karaoke video artifact.
type Renderer struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *ffmpeg.Service
}

// New constructs the render stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Renderer {
	return NewWithService(cfg, logger, ffmpeg.New(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
}

// NewWithService allows injecting the ffmpeg service (used in tests).
func NewWithService(cfg *config.Config, logger *slog.Logger, service *ffmpeg.Service) *Renderer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "renderer"))
	}
	return &Renderer{cfg: cfg, logger: stageLogger, service: service}
}

func (r *Renderer) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, r.logger)
	if song.Artifacts.ModifiedPath == "" {
		return services.Wrap(services.ErrValidation, "rendering", "validate inputs", "no modified instrumental to render; run the modification stage first", nil)
	}
	if song.Artifacts.SubtitlePath == "" {
		return services.Wrap(services.ErrValidation, "rendering", "validate inputs", "no subtitle file to render; run the transcription stage first", nil)
	}
	logger.Info("starting render",
		logging.String("audio_path", song.Artifacts.ModifiedPath),
		logging.String("subtitle_path", song.Artifacts.SubtitlePath),
	)
	return nil
}

func (r *Renderer) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, r.logger)

	width, height, err := config.ParseResolution(r.cfg.Video.Resolution)
	if err != nil {
		return songs.StageSuccess{}, services.Wrap(services.ErrConfiguration, "rendering", "resolve resolution", "invalid video resolution", err)
	}

	background, err := r.resolveBackground(ctx, width, height)
	if err != nil {
		return songs.StageSuccess{}, err
	}

	duration, err := r.service.ProbeDuration(ctx, song.Artifacts.ModifiedPath)
	if err != nil {
		logger.Warn("audio duration probe failed, using fallback", logging.Error(err))
		duration = 180
	}

	outputPath := filepath.Join(r.cfg.Paths.VideoDir, song.VideoID+"_karaoke.mp4")
	renderOpts := ffmpeg.RenderOptions{
		AudioPath:        song.Artifacts.ModifiedPath,
		SubtitlePath:     song.Artifacts.SubtitlePath,
		BackgroundPath:   background,
		OutputPath:       outputPath,
		Width:            width,
		Height:           height,
		FPS:              r.cfg.Video.FPS,
		VisualizerType:   r.cfg.Video.VisualizerType,
		VisualizerColor:  r.cfg.Video.VisualizerColor,
		VisualizerHeight: r.cfg.Video.VisualizerHeight,
		DurationSeconds:  duration,
	}
	if err := r.service.RenderKaraoke(ctx, renderOpts); err != nil {
		return songs.StageSuccess{}, err
	}

	info, err := r.service.VerifyVideo(ctx, outputPath)
	if err != nil {
		return songs.StageSuccess{}, err
	}
	logger.Info("render completed",
		logging.String("video_path", outputPath),
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
	)

	// When uploads are disabled the rendered video is the pipeline's last
	// artifact, so this success finishes the song.
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{VideoPath: outputPath},
		Final:     !r.cfg.Upload.Enabled,
	}, nil
}

// resolveBackground picks a random file from the backgrounds directory, or
// generates a gradient still when none exist or gradients are configured.
func (r *Renderer) resolveBackground(ctx context.Context, width, height int) (string, error) {
	backgroundsDir := r.cfg.Paths.BackgroundsDir
	if r.cfg.Video.BackgroundType != "gradient" {
		if candidates := listBackgrounds(backgroundsDir); len(candidates) > 0 {
			return candidates[rand.Intn(len(candidates))], nil
		}
	}

	gradientPath := filepath.Join(backgroundsDir, "gradient_bg.png")
	if _, err := os.Stat(gradientPath); err == nil {
		return gradientPath, nil
	}
	if err := os.MkdirAll(backgroundsDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "rendering", "background", "create backgrounds directory", err)
	}
	if err := r.service.CreateGradientBackground(ctx, gradientPath, width, height); err != nil {
		return "", err
	}
	return gradientPath, nil
}

func listBackgrounds(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := backgroundExtensions[ext]; ok {
			candidates = append(candidates, filepath.Join(dir, entry.Name()))
		}
	}
	return candidates
}

// HealthCheck verifies ffmpeg is reachable and the video directory is set.
func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "renderer"
	if r.cfg == nil || strings.TrimSpace(r.cfg.Paths.VideoDir) == "" {
		return stage.Unhealthy(name, "video directory not configured")
	}
	if _, _, err := config.ParseResolution(r.cfg.Video.Resolution); err != nil {
		return stage.Unhealthy(name, "invalid resolution: "+r.cfg.Video.Resolution)
	}
	if err := r.service.Available(); err != nil {
		return stage.Unhealthy(name, services.Details(err))
	}
	return stage.Healthy(name)
}
