package songs_test

import (
	"context"
	"errors"
	"testing"

	"songforge/internal/songs"
	"songforge/internal/testsupport"
)

func TestAddAndFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	song, err := store.Add(ctx, songs.NewSong{VideoID: "abc123", Title: "Test Song", Artist: "Artist"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if song.ID == 0 {
		t.Fatal("expected song ID to be assigned")
	}
	if song.Status != songs.StatusPending {
		t.Fatalf("expected pending, got %s", song.Status)
	}
	if song.URL == "" {
		t.Fatal("expected URL to be derived from video ID")
	}

	fetched, err := store.GetByVideoID(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByVideoID failed: %v", err)
	}
	if fetched.Title != "Test Song" || fetched.Artist != "Artist" {
		t.Fatalf("unexpected fetched song: %#v", fetched)
	}

	if _, err := store.GetByVideoID(ctx, "missing"); !errors.Is(err, songs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.Add(ctx, songs.NewSong{VideoID: "dup1", Title: "First"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, songs.NewSong{VideoID: "dup1", Title: "Second"}); !errors.Is(err, songs.ErrDuplicateSong) {
		t.Fatalf("expected ErrDuplicateSong, got %v", err)
	}
}

func TestUpsertRefreshesMetadataOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.Add(ctx, songs.NewSong{VideoID: "up1", Title: "Old Title"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.RecordStageSuccess(ctx, "up1", songs.StageDownload, songs.StageSuccess{
		Artifacts: songs.Artifacts{AudioPath: "/tmp/up1.wav"},
	}); err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}

	song, err := store.Upsert(ctx, songs.NewSong{VideoID: "up1", Title: "New Title", Channel: "Channel"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if song.Title != "New Title" || song.Channel != "Channel" {
		t.Fatalf("expected metadata refresh, got %#v", song)
	}
	if song.Status != songs.StatusDownloaded {
		t.Fatalf("expected pipeline state untouched, got %s", song.Status)
	}
	if song.Artifacts.AudioPath != "/tmp/up1.wav" {
		t.Fatal("expected artifacts untouched")
	}
}

func TestRecordStageSuccessAdvancesStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "adv1", "Advance")

	if _, err := store.MarkStageProcessing(ctx, "adv1", songs.StageDownload); err != nil {
		t.Fatalf("MarkStageProcessing failed: %v", err)
	}
	song, err := store.RecordStageSuccess(ctx, "adv1", songs.StageDownload, songs.StageSuccess{
		Artifacts: songs.Artifacts{AudioPath: "/tmp/adv1.wav"},
	})
	if err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}
	if song.Status != songs.StatusDownloaded {
		t.Fatalf("expected downloaded, got %s", song.Status)
	}
	if song.CurrentStage != "downloaded" {
		t.Fatalf("expected current stage downloaded, got %q", song.CurrentStage)
	}
	if song.AttemptCount(songs.StageDownload) != 1 {
		t.Fatalf("expected one attempt, got %d", song.AttemptCount(songs.StageDownload))
	}
	if _, ok := song.CompletedAt[songs.StageDownload]; !ok {
		t.Fatal("expected completion timestamp for download")
	}
}

func TestRecordStageSuccessRequiresArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "noart", "No Artifacts")

	if _, err := store.RecordStageSuccess(ctx, "noart", songs.StageDownload, songs.StageSuccess{}); !errors.Is(err, songs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinalSuccessCompletesBeforeUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "fin1", "Final Render")

	song, err := store.RecordStageSuccess(ctx, "fin1", songs.StageRender, songs.StageSuccess{
		Artifacts: songs.Artifacts{VideoPath: "/tmp/fin1.mp4"},
		Final:     true,
	})
	if err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}
	if song.Status != songs.StatusCompleted {
		t.Fatalf("expected completed, got %s", song.Status)
	}
	if song.CurrentStage != "rendered" {
		t.Fatalf("expected current stage rendered, got %q", song.CurrentStage)
	}
}

func TestRecordStageFailureRetryableThenTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "fail1", "Failing Song")

	song, err := store.RecordStageFailure(ctx, "fail1", songs.StageTranscribe, "model crashed", true, 2)
	if err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}
	if song.Status != songs.StatusRetryable {
		t.Fatalf("expected retryable after first failure, got %s", song.Status)
	}
	if song.LastError != "model crashed" {
		t.Fatalf("expected last error recorded, got %q", song.LastError)
	}

	song, err = store.RecordStageFailure(ctx, "fail1", songs.StageTranscribe, "model crashed again", true, 2)
	if err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}
	if song.Status != songs.StatusFailed {
		t.Fatalf("expected failed at attempt ceiling, got %s", song.Status)
	}
	if song.AttemptCount(songs.StageTranscribe) != 2 {
		t.Fatalf("expected two attempts, got %d", song.AttemptCount(songs.StageTranscribe))
	}
	if len(song.History) != 2 {
		t.Fatalf("expected two audit records, got %d", len(song.History))
	}
	if !song.History[1].Terminal {
		t.Fatal("expected second failure marked terminal")
	}
}

func TestRecordStageFailureNonRetriableFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "perm1", "Private Video")

	song, err := store.RecordStageFailure(ctx, "perm1", songs.StageDownload, "video is private", false, 3)
	if err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}
	if song.Status != songs.StatusFailed {
		t.Fatalf("expected failed for permanent error, got %s", song.Status)
	}
	if song.AttemptCount(songs.StageDownload) != 1 {
		t.Fatalf("expected one attempt, got %d", song.AttemptCount(songs.StageDownload))
	}
}

func TestResetToPendingClearsFailureKeepsArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "reset1", "Reset Song")

	if _, err := store.RecordStageSuccess(ctx, "reset1", songs.StageDownload, songs.StageSuccess{
		Artifacts: songs.Artifacts{AudioPath: "/tmp/reset1.wav"},
	}); err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}
	if _, err := store.RecordStageFailure(ctx, "reset1", songs.StageSeparate, "separator crashed", false, 3); err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}

	song, err := store.ResetToPending(ctx, "reset1")
	if err != nil {
		t.Fatalf("ResetToPending failed: %v", err)
	}
	if song.Status != songs.StatusPending {
		t.Fatalf("expected pending, got %s", song.Status)
	}
	if song.LastError != "" {
		t.Fatalf("expected last error cleared, got %q", song.LastError)
	}
	if song.Artifacts.AudioPath != "/tmp/reset1.wav" {
		t.Fatal("expected completed artifacts preserved")
	}
	if song.AttemptCount(songs.StageSeparate) != 0 {
		t.Fatal("expected failed stage attempts reset")
	}
	if song.AttemptCount(songs.StageDownload) != 1 {
		t.Fatal("expected completed stage attempts preserved")
	}
	if len(song.History) != 1 {
		t.Fatal("expected failure history preserved for audit")
	}
}

func TestResetToPendingRejectsCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "done1", "Done Song")
	if _, err := store.RecordStageSuccess(ctx, "done1", songs.StageRender, songs.StageSuccess{
		Artifacts: songs.Artifacts{VideoPath: "/tmp/done1.mp4"},
		Final:     true,
	}); err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}

	if _, err := store.ResetToPending(context.Background(), "done1"); !errors.Is(err, songs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkStageProcessingRejectsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "term1", "Terminal Song")
	if _, err := store.RecordStageFailure(ctx, "term1", songs.StageDownload, "gone", false, 1); err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}

	if _, err := store.MarkStageProcessing(ctx, "term1", songs.StageDownload); !errors.Is(err, songs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListFiltersByStatusInInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "list1", "First")
	testsupport.AddSong(t, store, "list2", "Second")
	testsupport.AddSong(t, store, "list3", "Third")
	if _, err := store.RecordStageFailure(ctx, "list2", songs.StageDownload, "boom", false, 1); err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}

	pending, err := store.List(ctx, songs.StatusPending)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 || pending[0].VideoID != "list1" || pending[1].VideoID != "list3" {
		t.Fatalf("unexpected pending listing: %#v", pending)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected three songs, got %d", len(all))
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "next1", "Oldest")
	testsupport.AddSong(t, store, "next2", "Newer")

	song, err := store.NextForStatuses(ctx, songs.StatusPending, songs.StatusRetryable)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if song == nil || song.VideoID != "next1" {
		t.Fatalf("expected oldest pending song, got %#v", song)
	}

	none, err := store.NextForStatuses(ctx, songs.StatusFailed)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no failed songs, got %#v", none)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "st1", "Pending")
	testsupport.AddSong(t, store, "st2", "Failed")
	if _, err := store.RecordStageFailure(ctx, "st2", songs.StageDownload, "gone", false, 1); err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[songs.StatusPending] != 1 || stats[songs.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
	if err := store.CheckHealth(ctx); err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
}

func TestClearFailedAndCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "cl1", "Keep")
	testsupport.AddSong(t, store, "cl2", "Failed")
	testsupport.AddSong(t, store, "cl3", "Completed")
	if _, err := store.RecordStageFailure(ctx, "cl2", songs.StageDownload, "gone", false, 1); err != nil {
		t.Fatalf("RecordStageFailure failed: %v", err)
	}
	if _, err := store.RecordStageSuccess(ctx, "cl3", songs.StageRender, songs.StageSuccess{
		Artifacts: songs.Artifacts{VideoPath: "/tmp/cl3.mp4"},
		Final:     true,
	}); err != nil {
		t.Fatalf("RecordStageSuccess failed: %v", err)
	}

	removedFailed, err := store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed failed: %v", err)
	}
	if removedFailed != 1 {
		t.Fatalf("expected one failed song removed, got %d", removedFailed)
	}
	removedCompleted, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted failed: %v", err)
	}
	if removedCompleted != 1 {
		t.Fatalf("expected one completed song removed, got %d", removedCompleted)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].VideoID != "cl1" {
		t.Fatalf("unexpected remaining songs: %#v", remaining)
	}
}

func TestRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.AddSong(t, store, "rm1", "Removable")
	if err := store.Remove(ctx, "rm1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Remove(ctx, "rm1"); !errors.Is(err, songs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
