package songs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StageSuccess carries the outcome of a successful stage execution. Final
// marks the stage as the last one for this song even if later stages exist,
// which is how render completes the pipeline when uploading is disabled.
type StageSuccess struct {
	Artifacts Artifacts
	Final     bool
}

// MarkStageProcessing claims a song for a stage by flipping it to the
// stage's in-flight status. The last error is cleared so a retry that is
// under way no longer reports the previous failure.
func (s *Store) MarkStageProcessing(ctx context.Context, videoID string, stage Stage) (*Song, error) {
	processing := ProcessingStatus(stage)
	if processing == "" {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	return s.transition(ctx, videoID, func(song *Song) error {
		if song.Status.Terminal() {
			return fmt.Errorf("%w: song %s is %s", ErrInvalidTransition, videoID, song.Status)
		}
		song.Status = processing
		song.LastError = ""
		return nil
	})
}

// RecordStageSuccess merges new artifacts, stamps the stage completion time,
// and advances the song's status. Attempts count executions, successful or
// not.
func (s *Store) RecordStageSuccess(ctx context.Context, videoID string, stage Stage, result StageSuccess) (*Song, error) {
	done := DoneStatus(stage)
	if done == "" {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	return s.transition(ctx, videoID, func(song *Song) error {
		bumpAttempt(song, stage)
		song.Artifacts = song.Artifacts.Merge(result.Artifacts)
		if !song.Artifacts.StageComplete(stage) {
			return fmt.Errorf("%w: stage %s reported success without its artifacts", ErrInvalidTransition, stage)
		}
		if song.CompletedAt == nil {
			song.CompletedAt = make(map[Stage]time.Time)
		}
		song.CompletedAt[stage] = time.Now().UTC()
		song.CurrentStage = string(done)
		if result.Final {
			song.Status = StatusCompleted
		} else {
			song.Status = done
		}
		song.LastError = ""
		return nil
	})
}

// RecordStageFailure bumps the stage's attempt counter, appends an audit
// record, and parks the song as retryable or failed. A song fails
// permanently when the error is not retriable or the attempt ceiling for the
// stage is reached.
func (s *Store) RecordStageFailure(ctx context.Context, videoID string, stage Stage, message string, retriable bool, maxAttempts int) (*Song, error) {
	if ProcessingStatus(stage) == "" {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return s.transition(ctx, videoID, func(song *Song) error {
		bumpAttempt(song, stage)
		terminal := !retriable || song.Attempts[stage] >= maxAttempts
		song.History = append(song.History, FailureRecord{
			Stage:    stage,
			Attempt:  song.Attempts[stage],
			Message:  message,
			Terminal: terminal,
			At:       time.Now().UTC(),
		})
		song.LastError = message
		if terminal {
			song.Status = StatusFailed
		} else {
			song.Status = StatusRetryable
		}
		return nil
	})
}

// ReclaimProcessing returns songs stranded in an in-flight status by an
// interrupted run to the scheduler. The next stage is re-derived from the
// artifacts on record, so completed work is never repeated.
func (s *Store) ReclaimProcessing(ctx context.Context) ([]*Song, error) {
	stuck, err := s.List(ctx, ProcessingStatuses()...)
	if err != nil {
		return nil, err
	}
	reclaimed := make([]*Song, 0, len(stuck))
	for _, candidate := range stuck {
		updated, err := s.transition(ctx, candidate.VideoID, func(song *Song) error {
			if !song.IsProcessing() {
				return fmt.Errorf("%w: song %s is no longer in flight", ErrInvalidTransition, song.VideoID)
			}
			song.Status = StatusPending
			return nil
		})
		if err != nil {
			// Another writer already moved the song on; that is the outcome
			// reclamation wanted anyway.
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrStoreConflict) {
				continue
			}
			return reclaimed, err
		}
		reclaimed = append(reclaimed, updated)
	}
	return reclaimed, nil
}

// CloseOut marks a song whose applicable stages all have artifacts as
// completed. No stage executes, so attempt counters and completion
// timestamps stay untouched.
func (s *Store) CloseOut(ctx context.Context, videoID string, last Stage) (*Song, error) {
	done := DoneStatus(last)
	if done == "" {
		return nil, fmt.Errorf("unknown stage %q", last)
	}
	return s.transition(ctx, videoID, func(song *Song) error {
		if !song.Artifacts.StageComplete(last) {
			return fmt.Errorf("%w: song %s has no %s artifacts to close out on", ErrInvalidTransition, videoID, last)
		}
		song.CurrentStage = string(done)
		song.Status = StatusCompleted
		song.LastError = ""
		return nil
	})
}

// ResetToPending clears a song's failure state so processing resumes at its
// first incomplete stage. Attempt counters for incomplete stages restart at
// zero; the failure history keeps the audit trail.
func (s *Store) ResetToPending(ctx context.Context, videoID string) (*Song, error) {
	return s.transition(ctx, videoID, func(song *Song) error {
		if song.Status == StatusCompleted {
			return fmt.Errorf("%w: song %s is already completed", ErrInvalidTransition, videoID)
		}
		for stage, count := range song.Attempts {
			if count > 0 && !song.Artifacts.StageComplete(stage) {
				delete(song.Attempts, stage)
			}
		}
		song.Status = StatusPending
		song.LastError = ""
		return nil
	})
}

func bumpAttempt(song *Song, stage Stage) {
	if song.Attempts == nil {
		song.Attempts = make(map[Stage]int)
	}
	song.Attempts[stage]++
}

// transition loads a song, applies mutate, and writes the full row back in
// one transaction. The update is guarded on the row's previous updated_at so
// a racing writer surfaces as ErrStoreConflict instead of silently losing a
// transition.
func (s *Store) transition(ctx context.Context, videoID string, mutate func(*Song) error) (*Song, error) {
	ctx = ensureContext(ctx)
	var result *Song
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE video_id = ?`, videoID)
		song, err := scanSong(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, videoID)
		}
		if err != nil {
			return fmt.Errorf("load song: %w", err)
		}

		previousUpdatedAt := song.UpdatedAt
		if err := mutate(song); err != nil {
			return err
		}
		song.UpdatedAt = time.Now().UTC()
		if !song.UpdatedAt.After(previousUpdatedAt) {
			song.UpdatedAt = previousUpdatedAt.Add(time.Microsecond)
		}

		if err := writeSong(ctx, tx, song, previousUpdatedAt); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transition: %w", err)
		}
		result = song
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func writeSong(ctx context.Context, tx *sql.Tx, song *Song, previousUpdatedAt time.Time) error {
	attemptsJSON, err := encodeAttempts(song.Attempts)
	if err != nil {
		return err
	}
	completedJSON, err := encodeCompleted(song.CompletedAt)
	if err != nil {
		return err
	}
	historyJSON, err := encodeHistory(song.History)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE songs
         SET title = ?, artist = ?, channel = ?, url = ?, status = ?, current_stage = ?,
             last_error = ?, attempts_json = ?, completed_json = ?, history_json = ?,
             audio_path = ?, vocals_path = ?, instrumental_path = ?, modified_path = ?,
             transcript_path = ?, subtitle_path = ?, video_path = ?, upload_id = ?,
             updated_at = ?
         WHERE id = ? AND updated_at = ?`,
		song.Title,
		song.Artist,
		song.Channel,
		song.URL,
		song.Status,
		song.CurrentStage,
		song.LastError,
		attemptsJSON,
		completedJSON,
		historyJSON,
		song.Artifacts.AudioPath,
		song.Artifacts.VocalsPath,
		song.Artifacts.InstrumentalPath,
		song.Artifacts.ModifiedPath,
		song.Artifacts.TranscriptPath,
		song.Artifacts.SubtitlePath,
		song.Artifacts.VideoPath,
		song.Artifacts.UploadID,
		song.UpdatedAt.Format(time.RFC3339Nano),
		song.ID,
		previousUpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("update song: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrStoreConflict, song.VideoID)
	}
	return nil
}
