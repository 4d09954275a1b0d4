package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/songs"
	"songforge/internal/stage"
	"songforge/internal/testsupport"
)

type stubHandler struct {
	name string
	fn   func(*songs.Song) (songs.StageSuccess, error)

	mu    sync.Mutex
	calls int
}

func (h *stubHandler) Prepare(context.Context, *songs.Song) error { return nil }

func (h *stubHandler) Execute(_ context.Context, song *songs.Song) (songs.StageSuccess, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.fn(song)
}

func (h *stubHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(h.name) }

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func successArtifacts(s songs.Stage, videoID string) songs.Artifacts {
	switch s {
	case songs.StageDownload:
		return songs.Artifacts{AudioPath: "/tmp/" + videoID + ".wav"}
	case songs.StageSeparate:
		return songs.Artifacts{
			VocalsPath:       "/tmp/" + videoID + "/vocals.wav",
			InstrumentalPath: "/tmp/" + videoID + "/no_vocals.wav",
		}
	case songs.StageModify:
		return songs.Artifacts{ModifiedPath: "/tmp/" + videoID + "/instrumental_modified.wav"}
	case songs.StageTranscribe:
		return songs.Artifacts{
			TranscriptPath: "/tmp/" + videoID + "/lyrics.srt",
			SubtitlePath:   "/tmp/" + videoID + "/lyrics.ass",
		}
	case songs.StageRender:
		return songs.Artifacts{VideoPath: "/tmp/" + videoID + "_karaoke.mp4"}
	case songs.StageUpload:
		return songs.Artifacts{UploadID: "yt-" + videoID}
	}
	return songs.Artifacts{}
}

// stubPipeline wires stub handlers that succeed for every stage. Individual
// tests override the handlers they want to misbehave.
func stubPipeline(cfg *config.Config) map[songs.Stage]*stubHandler {
	stubs := make(map[songs.Stage]*stubHandler)
	for _, s := range songs.PipelineStages() {
		if s == songs.StageUpload && !cfg.Upload.Enabled {
			continue
		}
		s := s
		stubs[s] = &stubHandler{
			name: string(s),
			fn: func(song *songs.Song) (songs.StageSuccess, error) {
				return songs.StageSuccess{
					Artifacts: successArtifacts(s, song.VideoID),
					Final:     s == songs.StageRender && !cfg.Upload.Enabled,
				}, nil
			},
		}
	}
	return stubs
}

func handlerMap(stubs map[songs.Stage]*stubHandler) map[songs.Stage]stage.Handler {
	handlers := make(map[songs.Stage]stage.Handler, len(stubs))
	for s, h := range stubs {
		handlers[s] = h
	}
	return handlers
}

func newTestRunner(t *testing.T, cfg *config.Config, store *songs.Store, stubs map[songs.Stage]*stubHandler) *Runner {
	t.Helper()
	logger := logging.NewNop()
	orchestrator := NewOrchestratorWithHandlers(cfg, store, logger, handlerMap(stubs))
	return NewRunner(cfg, store, logger, orchestrator)
}

func TestRunnerCompletesSongWithoutUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "abc123", "Test Song")

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)

	stats, err := runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if stats.Processed != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	song, err := store.GetByVideoID(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	if song.CurrentStage != string(songs.StatusRendered) {
		t.Fatalf("current stage = %q, want rendered", song.CurrentStage)
	}
	if song.Artifacts.UploadID != "" {
		t.Fatalf("upload id set while uploads disabled: %q", song.Artifacts.UploadID)
	}
	if song.Artifacts.VideoPath == "" || song.Artifacts.SubtitlePath == "" {
		t.Fatalf("missing artifacts: %+v", song.Artifacts)
	}
	if stubs[songs.StageUpload] != nil {
		t.Fatal("upload handler registered while uploads disabled")
	}
	for _, s := range []songs.Stage{songs.StageDownload, songs.StageSeparate, songs.StageModify, songs.StageTranscribe, songs.StageRender} {
		if got := stubs[s].callCount(); got != 1 {
			t.Fatalf("stage %s executed %d times, want 1", s, got)
		}
		if song.AttemptCount(s) != 1 {
			t.Fatalf("stage %s attempts = %d, want 1", s, song.AttemptCount(s))
		}
	}
}

func TestRunnerUploadsWhenEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "up001", "Upload Me")

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)

	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	song, err := store.GetByVideoID(context.Background(), "up001")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	if song.Artifacts.UploadID != "yt-up001" {
		t.Fatalf("upload id = %q", song.Artifacts.UploadID)
	}
	if got := stubs[songs.StageUpload].callCount(); got != 1 {
		t.Fatalf("upload executed %d times, want 1", got)
	}
}

func TestRunnerParksRetryableThenFailsAtCeiling(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageMaxAttempts("transcribe", 2))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "xyz999", "Stubborn Song")

	stubs := stubPipeline(cfg)
	stubs[songs.StageTranscribe].fn = func(*songs.Song) (songs.StageSuccess, error) {
		return songs.StageSuccess{}, services.Wrap(services.ErrExternalTool, "transcribing", "transcribe", "whisper exited with status 1", nil)
	}
	runner := newTestRunner(t, cfg, store, stubs)

	stats, err := runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("first RunPass: %v", err)
	}
	if stats.Retryable != 1 {
		t.Fatalf("unexpected stats after first pass: %+v", stats)
	}

	song, err := store.GetByVideoID(context.Background(), "xyz999")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusRetryable {
		t.Fatalf("status after first failure = %s, want retryable", song.Status)
	}
	if song.Artifacts.ModifiedPath == "" {
		t.Fatal("earlier stage artifacts lost after failure")
	}

	stats, err = runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats after second pass: %+v", stats)
	}

	song, err = store.GetByVideoID(context.Background(), "xyz999")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusFailed {
		t.Fatalf("status = %s, want failed", song.Status)
	}
	if song.AttemptCount(songs.StageTranscribe) != 2 {
		t.Fatalf("transcribe attempts = %d, want 2", song.AttemptCount(songs.StageTranscribe))
	}
	if len(song.History) != 2 || !song.History[1].Terminal {
		t.Fatalf("unexpected failure history: %+v", song.History)
	}
	// Earlier stages were never re-executed.
	if got := stubs[songs.StageDownload].callCount(); got != 1 {
		t.Fatalf("download executed %d times, want 1", got)
	}
}

func TestRunnerResumesResetSongAtFailedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageMaxAttempts("transcribe", 1))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "m1", "Second Chance")

	stubs := stubPipeline(cfg)
	healthy := stubs[songs.StageTranscribe].fn
	stubs[songs.StageTranscribe].fn = func(*songs.Song) (songs.StageSuccess, error) {
		return songs.StageSuccess{}, services.Wrap(services.ErrExternalTool, "transcribing", "transcribe", "out of memory", nil)
	}
	runner := newTestRunner(t, cfg, store, stubs)

	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass: %v", err)
	}
	song, err := store.GetByVideoID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusFailed {
		t.Fatalf("status = %s, want failed", song.Status)
	}

	stubs[songs.StageTranscribe].fn = healthy
	if _, err := store.ResetToPending(context.Background(), "m1"); err != nil {
		t.Fatalf("ResetToPending: %v", err)
	}

	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	song, err = store.GetByVideoID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	// The reset song resumed at transcribe; completed stages were not redone.
	if got := stubs[songs.StageDownload].callCount(); got != 1 {
		t.Fatalf("download executed %d times, want 1", got)
	}
	if got := stubs[songs.StageTranscribe].callCount(); got != 2 {
		t.Fatalf("transcribe executed %d times, want 2", got)
	}
	if len(song.History) != 1 {
		t.Fatalf("failure history lost on reset: %+v", song.History)
	}
}

func TestRunnerFailsImmediatelyOnPermanentError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(5))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "priv01", "Private Video")

	stubs := stubPipeline(cfg)
	stubs[songs.StageDownload].fn = func(*songs.Song) (songs.StageSuccess, error) {
		return songs.StageSuccess{}, services.Wrap(services.ErrValidation, "downloading", "download audio", "video is private", nil)
	}
	runner := newTestRunner(t, cfg, store, stubs)

	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	song, err := store.GetByVideoID(context.Background(), "priv01")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusFailed {
		t.Fatalf("status = %s, want failed", song.Status)
	}
	if song.AttemptCount(songs.StageDownload) != 1 {
		t.Fatalf("download attempts = %d, want 1", song.AttemptCount(songs.StageDownload))
	}
}

func TestRunnerIsolatesFailuresBetweenSongs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	cfg.Workflow.Workers = 3
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "good1", "Fine Song")
	testsupport.AddSong(t, store, "bad1", "Broken Song")
	testsupport.AddSong(t, store, "good2", "Another Fine Song")

	stubs := stubPipeline(cfg)
	separate := stubs[songs.StageSeparate].fn
	stubs[songs.StageSeparate].fn = func(song *songs.Song) (songs.StageSuccess, error) {
		if song.VideoID == "bad1" {
			return songs.StageSuccess{}, services.Wrap(services.ErrExternalTool, "separating", "separate stems", "demucs crashed", nil)
		}
		return separate(song)
	}
	runner := newTestRunner(t, cfg, store, stubs)

	stats, err := runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if stats.Processed != 3 || stats.Completed != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	for videoID, want := range map[string]songs.Status{
		"good1": songs.StatusCompleted,
		"bad1":  songs.StatusFailed,
		"good2": songs.StatusCompleted,
	} {
		song, err := store.GetByVideoID(context.Background(), videoID)
		if err != nil {
			t.Fatalf("GetByVideoID(%s): %v", videoID, err)
		}
		if song.Status != want {
			t.Fatalf("song %s status = %s, want %s", videoID, song.Status, want)
		}
	}
}

func TestRunnerHonorsRetryBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	cfg.Workflow.RetryBackoffBase = 60
	cfg.Workflow.RetryBackoffMax = 600
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "slow1", "Patience")

	stubs := stubPipeline(cfg)
	stubs[songs.StageDownload].fn = func(*songs.Song) (songs.StageSuccess, error) {
		return songs.StageSuccess{}, services.Wrap(services.ErrTransient, "downloading", "download audio", "connection reset", nil)
	}
	runner := newTestRunner(t, cfg, store, stubs)

	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass: %v", err)
	}

	// Inside the backoff window the song is skipped.
	stats, err := runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("song processed during backoff window: %+v", stats)
	}

	runner.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	stats, err = runner.RunPass(context.Background())
	if err != nil {
		t.Fatalf("third RunPass: %v", err)
	}
	if stats.Processed != 1 {
		t.Fatalf("song not picked up after backoff elapsed: %+v", stats)
	}
}

func TestProcessStageIsNoOpForTerminalSong(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "done1", "Finished")

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)
	if _, err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	song, executed, err := runner.orchestrator.ProcessStage(context.Background(), "done1")
	if err != nil {
		t.Fatalf("ProcessStage: %v", err)
	}
	if executed {
		t.Fatal("terminal song executed a stage")
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	if got := stubs[songs.StageRender].callCount(); got != 1 {
		t.Fatalf("render executed %d times, want 1", got)
	}
}

func TestOrchestratorClosesOutSongWithCompleteArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "closeme", "Already Done")

	ctx := context.Background()
	for _, s := range []songs.Stage{songs.StageDownload, songs.StageSeparate, songs.StageModify, songs.StageTranscribe, songs.StageRender} {
		if _, err := store.RecordStageSuccess(ctx, "closeme", s, songs.StageSuccess{Artifacts: successArtifacts(s, "closeme")}); err != nil {
			t.Fatalf("RecordStageSuccess(%s): %v", s, err)
		}
	}

	before, err := store.GetByVideoID(ctx, "closeme")
	if err != nil {
		t.Fatalf("GetByVideoID before closeout: %v", err)
	}
	renderedAt := before.CompletedAt[songs.StageRender]

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)
	song, executed, err := runner.orchestrator.ProcessStage(ctx, "closeme")
	if err != nil {
		t.Fatalf("ProcessStage: %v", err)
	}
	if executed {
		t.Fatal("fully-produced song executed a stage")
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	for _, h := range stubs {
		if h.callCount() != 0 {
			t.Fatalf("handler %s ran during closeout", h.name)
		}
	}
	// Nothing executed, so nothing is counted or re-stamped.
	for _, s := range []songs.Stage{songs.StageDownload, songs.StageSeparate, songs.StageModify, songs.StageTranscribe, songs.StageRender} {
		if song.AttemptCount(s) != 1 {
			t.Fatalf("stage %s attempts = %d after closeout, want 1", s, song.AttemptCount(s))
		}
	}
	if !song.CompletedAt[songs.StageRender].Equal(renderedAt) {
		t.Fatalf("render completion re-stamped during closeout: %s -> %s", renderedAt, song.CompletedAt[songs.StageRender])
	}
}

func TestRunnerReclaimsInterruptedSong(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "crash1", "Interrupted Song")

	ctx := context.Background()
	if _, err := store.RecordStageSuccess(ctx, "crash1", songs.StageDownload, songs.StageSuccess{
		Artifacts: successArtifacts(songs.StageDownload, "crash1"),
	}); err != nil {
		t.Fatalf("RecordStageSuccess: %v", err)
	}
	// Claimed for separation, then the process died before any outcome was
	// recorded.
	if _, err := store.MarkStageProcessing(ctx, "crash1", songs.StageSeparate); err != nil {
		t.Fatalf("MarkStageProcessing: %v", err)
	}

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)
	stats, err := runner.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if stats.Processed != 1 || stats.Completed != 1 {
		t.Fatalf("stranded song not picked up: %+v", stats)
	}

	song, err := store.GetByVideoID(ctx, "crash1")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("status = %s, want completed", song.Status)
	}
	// The download completed before the crash and was not redone; processing
	// resumed at separation.
	if got := stubs[songs.StageDownload].callCount(); got != 0 {
		t.Fatalf("download re-executed %d times after crash", got)
	}
	if got := stubs[songs.StageSeparate].callCount(); got != 1 {
		t.Fatalf("separate executed %d times, want 1", got)
	}
}

func TestReclaimProcessingLeavesRestingSongsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "stuck1", "Stuck Song")
	testsupport.AddSong(t, store, "idle1", "Idle Song")

	ctx := context.Background()
	if _, err := store.MarkStageProcessing(ctx, "stuck1", songs.StageDownload); err != nil {
		t.Fatalf("MarkStageProcessing: %v", err)
	}

	reclaimed, err := store.ReclaimProcessing(ctx)
	if err != nil {
		t.Fatalf("ReclaimProcessing: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].VideoID != "stuck1" {
		t.Fatalf("reclaimed = %+v, want just stuck1", reclaimed)
	}
	if reclaimed[0].Status != songs.StatusPending {
		t.Fatalf("reclaimed status = %s, want pending", reclaimed[0].Status)
	}
	// Nothing was executed, so no attempt is counted against the stage.
	if reclaimed[0].AttemptCount(songs.StageDownload) != 0 {
		t.Fatalf("download attempts = %d after reclaim, want 0", reclaimed[0].AttemptCount(songs.StageDownload))
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	base := 30 * time.Second
	max := 5 * time.Minute
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{20, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := retryDelay(base, max, tc.attempts); got != tc.want {
			t.Fatalf("retryDelay(attempts=%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
	if got := retryDelay(0, max, 3); got != 0 {
		t.Fatalf("retryDelay with zero base = %s, want 0", got)
	}
}

func TestOrchestratorHealthReportsRegisteredStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)

	reports := runner.orchestrator.Health(context.Background())
	if len(reports) != 5 {
		t.Fatalf("got %d health reports, want 5", len(reports))
	}
	for _, report := range reports {
		if !report.Ready {
			t.Fatalf("stage %s unexpectedly unhealthy: %s", report.Name, report.Detail)
		}
	}
}
