// Package transcriber implements the stage that turns the vocal stem into
// timed lyrics: an SRT transcript plus an ASS karaoke subtitle file.
package transcriber

import (
	"context"
	"path/filepath"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/whisper"
	"songforge/internal/songs"
	"songforge/internal/stage"
	"songforge/internal/subtitles"
)

// Transcriber produces the lyric artifacts for a song.
type Transcriber struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *whisper.Service
}

// New constructs the transcription stage handler using default dependencies.
func New(cfg *config.Config, logger *slog.Logger) *Transcriber {
	service := whisper.New(cfg.Transcription.Binary, cfg.Transcription.Model, cfg.Transcription.Language)
	return NewWithService(cfg, logger, service)
}

// NewWithService allows injecting the transcription service (used in tests).
func NewWithService(cfg *config.Config, logger *slog.Logger, service *whisper.Service) *Transcriber {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "transcriber"))
	}
	return &Transcriber{cfg: cfg, logger: stageLogger, service: service}
}

func (t *Transcriber) Prepare(ctx context.Context, song *songs.Song) error {
	logger := logging.WithContext(ctx, t.logger)
	if song.Artifacts.VocalsPath == "" {
		return services.Wrap(services.ErrValidation, "transcribing", "validate inputs", "no vocal stem to transcribe; run the separation stage first", nil)
	}
	logger.Info("starting transcription",
		logging.String("vocals_path", song.Artifacts.VocalsPath),
		logging.String("model", t.service.Model()),
	)
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, song *songs.Song) (songs.StageSuccess, error) {
	logger := logging.WithContext(ctx, t.logger)

	workDir := filepath.Join(t.cfg.Paths.WorkDir, song.VideoID, "lyrics")
	segments, err := t.service.Transcribe(ctx, song.Artifacts.VocalsPath, workDir)
	if err != nil {
		return songs.StageSuccess{}, err
	}

	cues := make([]subtitles.Cue, 0, len(segments))
	for _, segment := range segments {
		cues = append(cues, subtitles.Cue{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}

	srtPath := filepath.Join(workDir, "lyrics.srt")
	if err := subtitles.WriteSRT(srtPath, cues); err != nil {
		return songs.StageSuccess{}, services.Wrap(services.ErrTransient, "transcribing", "write transcript", "write srt file", err)
	}

	assPath := filepath.Join(workDir, "lyrics.ass")
	if err := subtitles.WriteKaraokeASS(assPath, cues, t.karaokeStyle()); err != nil {
		return songs.StageSuccess{}, services.Wrap(services.ErrTransient, "transcribing", "write subtitles", "write ass file", err)
	}
	if issues := subtitles.ValidateASS(assPath); len(issues) > 0 {
		return songs.StageSuccess{}, services.Wrap(services.ErrValidation, "transcribing", "validate subtitles", strings.Join(issues, ", "), nil)
	}

	logger.Info("transcription completed",
		logging.Int("segments", len(cues)),
		logging.String("transcript_path", srtPath),
		logging.String("subtitle_path", assPath),
	)
	return songs.StageSuccess{
		Artifacts: songs.Artifacts{
			TranscriptPath: srtPath,
			SubtitlePath:   assPath,
		},
	}, nil
}

func (t *Transcriber) karaokeStyle() subtitles.KaraokeStyle {
	width, height, err := config.ParseResolution(t.cfg.Video.Resolution)
	if err != nil {
		width, height = 1920, 1080
	}
	return subtitles.KaraokeStyle{
		PlayResX:       width,
		PlayResY:       height,
		FontName:       t.cfg.Video.FontName,
		FontSize:       t.cfg.Video.FontSize,
		PrimaryColor:   t.cfg.Video.PrimaryColor,
		HighlightColor: t.cfg.Video.HighlightColor,
		BorderSize:     t.cfg.Video.BorderSize,
		ShadowDepth:    t.cfg.Video.ShadowDepth,
		FadeInMs:       t.cfg.Video.FadeInMs,
		FadeOutMs:      t.cfg.Video.FadeOutMs,
	}
}

// HealthCheck verifies the whisper binary is reachable.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if t.cfg == nil || strings.TrimSpace(t.cfg.Paths.WorkDir) == "" {
		return stage.Unhealthy(name, "work directory not configured")
	}
	if err := t.service.Available(); err != nil {
		return stage.Unhealthy(name, services.Details(err))
	}
	return stage.Healthy(name)
}
