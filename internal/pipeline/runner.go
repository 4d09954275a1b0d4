package pipeline

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/songs"
)

// Runner drains the queue by driving each claimed song to a resting state.
// Failures are isolated per song: one song failing never stops the pass.
type Runner struct {
	cfg          *config.Config
	store        *songs.Store
	logger       *slog.Logger
	orchestrator *Orchestrator
	now          func() time.Time
}

// PassStats summarizes one runner pass.
type PassStats struct {
	Processed int
	Completed int
	Failed    int
	Retryable int
}

// NewRunner constructs a runner on top of an orchestrator.
func NewRunner(cfg *config.Config, store *songs.Store, logger *slog.Logger, orchestrator *Orchestrator) *Runner {
	runnerLogger := logger
	if runnerLogger != nil {
		runnerLogger = runnerLogger.With(logging.String("component", "runner"))
	}
	return &Runner{
		cfg:          cfg,
		store:        store,
		logger:       runnerLogger,
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

// RunPass processes every currently eligible song once through to a resting
// state, using up to workflow.workers concurrent workers. Each song is
// claimed by exactly one worker.
func (r *Runner) RunPass(ctx context.Context) (PassStats, error) {
	reclaimed, err := r.store.ReclaimProcessing(ctx)
	if err != nil {
		return PassStats{}, err
	}
	for _, song := range reclaimed {
		r.logger.Warn("reclaimed interrupted song",
			logging.String("song_id", song.VideoID),
			logging.String("resume_stage", song.CurrentStage),
		)
	}

	candidates, err := r.eligibleSongs(ctx)
	if err != nil {
		return PassStats{}, err
	}
	if len(candidates) == 0 {
		return PassStats{}, nil
	}

	workers := r.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	queue := make(chan string)
	results := make(chan songs.Status, len(candidates))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for videoID := range queue {
				results <- r.processSong(ctx, videoID)
			}
		}()
	}

	for _, videoID := range candidates {
		select {
		case queue <- videoID:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	var stats PassStats
	for status := range results {
		stats.Processed++
		switch status {
		case songs.StatusCompleted:
			stats.Completed++
		case songs.StatusFailed:
			stats.Failed++
		case songs.StatusRetryable:
			stats.Retryable++
		}
	}
	return stats, ctx.Err()
}

// ProcessSong drives one song until it completes, fails, or parks as
// retryable. Stage outcomes are persisted by the orchestrator as they happen.
func (r *Runner) ProcessSong(ctx context.Context, videoID string) (*songs.Song, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		song, executed, err := r.orchestrator.ProcessStage(ctx, videoID)
		if err != nil {
			return nil, err
		}
		if song.Status.Terminal() || song.Status == songs.StatusRetryable {
			return song, nil
		}
		if !executed {
			return song, nil
		}
	}
}

// processSong is the per-worker wrapper: errors are logged, not returned, so
// one song failing never stops the rest of the pass.
func (r *Runner) processSong(ctx context.Context, videoID string) songs.Status {
	song, err := r.ProcessSong(ctx, videoID)
	if err != nil {
		r.logger.Error("song processing aborted",
			logging.String("song_id", videoID),
			logging.Error(err),
		)
		return ""
	}
	return song.Status
}

// eligibleSongs lists pending songs plus retryable songs whose backoff has
// elapsed, oldest first.
func (r *Runner) eligibleSongs(ctx context.Context) ([]string, error) {
	listed, err := r.store.List(ctx, songs.StatusPending, songs.StatusRetryable)
	if err != nil {
		return nil, err
	}
	base := time.Duration(r.cfg.Workflow.RetryBackoffBase) * time.Second
	max := time.Duration(r.cfg.Workflow.RetryBackoffMax) * time.Second
	now := r.now()

	ids := make([]string, 0, len(listed))
	for _, song := range listed {
		if !retryEligible(song, base, max, now) {
			continue
		}
		ids = append(ids, song.VideoID)
	}
	return ids, nil
}
