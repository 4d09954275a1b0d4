package pipeline

import (
	"time"

	"songforge/internal/songs"
)

// retryDelay computes the wait before a retryable song may run again:
// base doubled per prior attempt, capped at max.
func retryDelay(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 || attempts <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// retryEligible reports whether a retryable song has waited out its backoff.
// The attempt count comes from the stage that failed last.
func retryEligible(song *songs.Song, base, max time.Duration, now time.Time) bool {
	if song.Status != songs.StatusRetryable {
		return true
	}
	attempts := 0
	if n := len(song.History); n > 0 {
		attempts = song.AttemptCount(song.History[n-1].Stage)
	}
	delay := retryDelay(base, max, attempts)
	return !now.Before(song.UpdatedAt.Add(delay))
}
