package songs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Add enqueues a new pending song. Adding the same video twice is an error so
// callers can distinguish fresh work from duplicates.
func (s *Store) Add(ctx context.Context, input NewSong) (*Song, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(input.VideoID) == "" {
		return nil, errors.New("video id is required")
	}
	if strings.TrimSpace(input.URL) == "" {
		input.URL = "https://www.youtube.com/watch?v=" + input.VideoID
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO songs (
            video_id, title, artist, channel, url, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		input.VideoID,
		input.Title,
		input.Artist,
		input.Channel,
		input.URL,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSong, input.VideoID)
		}
		return nil, fmt.Errorf("insert song: %w", err)
	}

	return s.GetByVideoID(ctx, input.VideoID)
}

// Upsert enqueues a song or refreshes the descriptive fields of an existing
// row without disturbing its pipeline state. Used by discovery so repeated
// trending sweeps stay idempotent.
func (s *Store) Upsert(ctx context.Context, input NewSong) (*Song, error) {
	song, err := s.Add(ctx, input)
	if err == nil {
		return song, nil
	}
	if !errors.Is(err, ErrDuplicateSong) {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE songs SET title = ?, artist = ?, channel = ?, updated_at = ? WHERE video_id = ?`,
		input.Title,
		input.Artist,
		input.Channel,
		timestamp,
		input.VideoID,
	); err != nil {
		return nil, fmt.Errorf("refresh song: %w", err)
	}
	return s.GetByVideoID(ctx, input.VideoID)
}

// GetByVideoID fetches a song by its YouTube video identifier.
func (s *Store) GetByVideoID(ctx context.Context, videoID string) (*Song, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE video_id = ?`, videoID)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	return song, nil
}

// GetByID fetches a song by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Song, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	return song, nil
}

// List returns songs filtered by status, oldest first. With no statuses it
// returns the full queue.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Song, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + songColumns + ` FROM songs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var songs []*Song
	for rows.Next() {
		song, scanErr := scanSong(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan song: %w", scanErr)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate songs: %w", err)
	}
	return songs, nil
}

// NextForStatuses returns the oldest song in any of the given statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Song, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = status
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+songColumns+` FROM songs WHERE status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY id LIMIT 1`,
		args...,
	)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next song: %w", err)
	}
	return song, nil
}

// Stats returns song counts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM songs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("song stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Health summarizes the queue for status reporting.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var summary HealthSummary
	for status, count := range stats {
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusRetryable:
			summary.Retryable += count
		case status == StatusFailed:
			summary.Failed += count
		case status == StatusCompleted:
			summary.Completed += count
		case IsProcessingStatus(status):
			summary.Working += count
		}
	}
	return summary, nil
}

// CheckHealth verifies the database file is reachable and writable.
func (s *Store) CheckHealth(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	var ignored int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM songs").Scan(&ignored); err != nil {
		return fmt.Errorf("query songs table: %w", err)
	}
	return nil
}

// Remove deletes a song regardless of status.
func (s *Store) Remove(ctx context.Context, videoID string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM songs WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("remove song: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	return nil
}

// ClearFailed removes all failed songs and returns how many were deleted.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearByStatus(ctx, StatusFailed)
}

// ClearCompleted removes all completed songs and returns how many were deleted.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.clearByStatus(ctx, StatusCompleted)
}

func (s *Store) clearByStatus(ctx context.Context, status Status) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM songs WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("clear %s songs: %w", status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
