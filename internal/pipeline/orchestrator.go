package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"songforge/internal/config"
	"songforge/internal/downloader"
	"songforge/internal/logging"
	"songforge/internal/modifier"
	"songforge/internal/renderer"
	"songforge/internal/separator"
	"songforge/internal/services"
	"songforge/internal/songs"
	"songforge/internal/stage"
	"songforge/internal/transcriber"
	"songforge/internal/uploader"
)

// Orchestrator advances songs through the stage handlers one step at a time.
type Orchestrator struct {
	cfg      *config.Config
	store    *songs.Store
	logger   *slog.Logger
	handlers map[songs.Stage]stage.Handler
}

// NewOrchestrator wires the default stage handlers.
func NewOrchestrator(cfg *config.Config, store *songs.Store, logger *slog.Logger) *Orchestrator {
	handlers := map[songs.Stage]stage.Handler{
		songs.StageDownload:   downloader.New(cfg, logger),
		songs.StageSeparate:   separator.New(cfg, logger),
		songs.StageModify:     modifier.New(cfg, logger),
		songs.StageTranscribe: transcriber.New(cfg, logger),
		songs.StageRender:     renderer.New(cfg, logger),
	}
	if cfg.Upload.Enabled {
		handlers[songs.StageUpload] = uploader.New(cfg, logger)
	}
	return NewOrchestratorWithHandlers(cfg, store, logger, handlers)
}

// NewOrchestratorWithHandlers allows injecting stage handlers (used in tests).
func NewOrchestratorWithHandlers(cfg *config.Config, store *songs.Store, logger *slog.Logger, handlers map[songs.Stage]stage.Handler) *Orchestrator {
	orchestratorLogger := logger
	if orchestratorLogger != nil {
		orchestratorLogger = orchestratorLogger.With(logging.String("component", "orchestrator"))
	}
	return &Orchestrator{cfg: cfg, store: store, logger: orchestratorLogger, handlers: handlers}
}

// ProcessStage runs the song's next incomplete stage and records the
// outcome. It returns the refreshed song and whether a stage was executed;
// terminal songs are a no-op.
func (o *Orchestrator) ProcessStage(ctx context.Context, videoID string) (*songs.Song, bool, error) {
	song, err := o.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return nil, false, err
	}
	if song.Status.Terminal() {
		return song, false, nil
	}

	nextStage, ok := songs.NextStage(song, o.cfg.Upload.Enabled)
	if !ok {
		// Every applicable artifact exists; close the song out without
		// re-running any stage or counting an execution.
		updated, err := o.store.CloseOut(ctx, videoID, lastApplicableStage(o.cfg.Upload.Enabled))
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	}

	handler, exists := o.handlers[nextStage]
	if !exists {
		return nil, false, fmt.Errorf("no handler registered for stage %s", nextStage)
	}

	ctx = services.WithSongID(ctx, song.VideoID)
	ctx = services.WithStage(ctx, string(nextStage))
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)

	song, err = o.store.MarkStageProcessing(ctx, videoID, nextStage)
	if err != nil {
		return nil, false, err
	}
	logger.Info("stage claimed",
		logging.String("stage", string(nextStage)),
		logging.Int("attempt", song.AttemptCount(nextStage)+1),
	)

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout(nextStage))
	defer cancel()

	result, execErr := o.runHandler(stageCtx, handler, song)
	if execErr != nil {
		return o.recordFailure(ctx, song, nextStage, execErr)
	}

	updated, err := o.store.RecordStageSuccess(ctx, videoID, nextStage, result)
	if err != nil {
		return nil, true, err
	}
	logger.Info("stage completed",
		logging.String("stage", string(nextStage)),
		logging.String("status", string(updated.Status)),
	)
	return updated, true, nil
}

func (o *Orchestrator) runHandler(ctx context.Context, handler stage.Handler, song *songs.Song) (songs.StageSuccess, error) {
	if err := handler.Prepare(ctx, song); err != nil {
		return songs.StageSuccess{}, err
	}
	result, err := handler.Execute(ctx, song)
	if err != nil && ctx.Err() != nil {
		err = services.Wrap(services.ErrTimeout, "", "", "stage exceeded its time budget", err)
	}
	return result, err
}

func (o *Orchestrator) recordFailure(ctx context.Context, song *songs.Song, failedStage songs.Stage, execErr error) (*songs.Song, bool, error) {
	logger := logging.WithContext(ctx, o.logger)
	retriable := services.Retriable(execErr) && !errors.Is(execErr, context.Canceled)
	maxAttempts := o.cfg.StageMaxAttempts(string(failedStage))

	updated, err := o.store.RecordStageFailure(ctx, song.VideoID, failedStage, execErr.Error(), retriable, maxAttempts)
	if err != nil {
		return nil, true, err
	}
	logger.Error("stage failed",
		logging.String("stage", string(failedStage)),
		logging.String("error_kind", services.Kind(execErr)),
		logging.String("status", string(updated.Status)),
		logging.Int("attempt", updated.AttemptCount(failedStage)),
		logging.Error(execErr),
	)
	return updated, true, nil
}

func (o *Orchestrator) stageTimeout(s songs.Stage) time.Duration {
	seconds := 0
	switch s {
	case songs.StageDownload:
		seconds = o.cfg.Workflow.DownloadTimeout
	case songs.StageSeparate:
		seconds = o.cfg.Workflow.SeparationTimeout
	case songs.StageModify:
		seconds = o.cfg.Workflow.ModificationTimeout
	case songs.StageTranscribe:
		seconds = o.cfg.Workflow.TranscriptionTimeout
	case songs.StageRender:
		seconds = o.cfg.Workflow.RenderTimeout
	case songs.StageUpload:
		seconds = o.cfg.Workflow.UploadTimeout
	}
	if seconds <= 0 {
		seconds = 1800
	}
	return time.Duration(seconds) * time.Second
}

func lastApplicableStage(uploadEnabled bool) songs.Stage {
	if uploadEnabled {
		return songs.StageUpload
	}
	return songs.StageRender
}

// Health reports readiness of every registered stage handler.
func (o *Orchestrator) Health(ctx context.Context) []stage.Health {
	ordered := songs.PipelineStages()
	reports := make([]stage.Health, 0, len(ordered))
	for _, s := range ordered {
		handler, ok := o.handlers[s]
		if !ok {
			continue
		}
		reports = append(reports, handler.HealthCheck(ctx))
	}
	return reports
}
