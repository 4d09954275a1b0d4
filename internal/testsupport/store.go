package testsupport

import (
	"context"
	"testing"

	"songforge/internal/config"
	"songforge/internal/songs"
)

// MustOpenStore opens a songs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *songs.Store {
	t.Helper()

	store, err := songs.Open(cfg)
	if err != nil {
		t.Fatalf("songs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddSong enqueues a pending song for tests using the provided store.
func AddSong(t testing.TB, store *songs.Store, videoID, title string) *songs.Song {
	t.Helper()

	song, err := store.Add(context.Background(), songs.NewSong{
		VideoID: videoID,
		Title:   title,
		Artist:  "Test Artist",
		Channel: "Test Channel",
	})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return song
}
