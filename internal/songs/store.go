package songs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"songforge/internal/config"
)

// Store manages song persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the song database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "songs.db"))
}

// OpenPath opens the store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const songColumns = `id, video_id, title, artist, channel, url, status, current_stage,
    last_error, attempts_json, completed_json, history_json,
    audio_path, vocals_path, instrumental_path, modified_path,
    transcript_path, subtitle_path, video_path, upload_id,
    created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*Song, error) {
	var (
		song          Song
		status        string
		attemptsJSON  string
		completedJSON string
		historyJSON   string
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&song.ID,
		&song.VideoID,
		&song.Title,
		&song.Artist,
		&song.Channel,
		&song.URL,
		&status,
		&song.CurrentStage,
		&song.LastError,
		&attemptsJSON,
		&completedJSON,
		&historyJSON,
		&song.Artifacts.AudioPath,
		&song.Artifacts.VocalsPath,
		&song.Artifacts.InstrumentalPath,
		&song.Artifacts.ModifiedPath,
		&song.Artifacts.TranscriptPath,
		&song.Artifacts.SubtitlePath,
		&song.Artifacts.VideoPath,
		&song.Artifacts.UploadID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	song.Status = Status(status)
	if song.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if song.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(attemptsJSON), &song.Attempts); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	if err := json.Unmarshal([]byte(completedJSON), &song.CompletedAt); err != nil {
		return nil, fmt.Errorf("decode completion times: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &song.History); err != nil {
		return nil, fmt.Errorf("decode failure history: %w", err)
	}
	return &song, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func encodeAttempts(attempts map[Stage]int) (string, error) {
	if attempts == nil {
		attempts = map[Stage]int{}
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(data), nil
}

func encodeCompleted(completed map[Stage]time.Time) (string, error) {
	if completed == nil {
		completed = map[Stage]time.Time{}
	}
	data, err := json.Marshal(completed)
	if err != nil {
		return "", fmt.Errorf("encode completion times: %w", err)
	}
	return string(data), nil
}

func encodeHistory(history []FailureRecord) (string, error) {
	if history == nil {
		history = []FailureRecord{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("encode failure history: %w", err)
	}
	return string(data), nil
}
