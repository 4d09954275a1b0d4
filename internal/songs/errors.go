package songs

import "errors"

var (
	// ErrNotFound is returned when a song lookup matches no row.
	ErrNotFound = errors.New("song not found")

	// ErrDuplicateSong is returned when adding a video ID that already exists.
	ErrDuplicateSong = errors.New("song already exists")

	// ErrStoreConflict indicates a transition raced with another writer for
	// the same song. The scheduler never hands one song to two workers, so
	// seeing this error means a dispatch bug, not a retry condition.
	ErrStoreConflict = errors.New("store conflict: concurrent update for song")

	// ErrInvalidTransition is returned when a recorded outcome does not
	// match the song's current lifecycle position.
	ErrInvalidTransition = errors.New("invalid status transition")
)
