package discovery

import (
	"context"
	"testing"

	"songforge/internal/logging"
	"songforge/internal/services/youtube"
	"songforge/internal/songs"
	"songforge/internal/testsupport"
)

type fakeClient struct {
	videos []youtube.Video
	query  string
}

func (f *fakeClient) MostPopular(_ context.Context, _, _ string, _ int) ([]youtube.Video, error) {
	return f.videos, nil
}

func (f *fakeClient) Search(_ context.Context, q, _, _ string, _ int) ([]youtube.Video, error) {
	f.query = q
	return f.videos, nil
}

func TestTrendingEnqueuesNewVideos(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	client := &fakeClient{videos: []youtube.Video{
		{ID: "vid1", Title: "Dua Lipa - Houdini (Official Music Video)", ChannelTitle: "Dua Lipa", ViewCount: 1000},
		{ID: "vid2", Title: "Bohemian Rhapsody", ChannelTitle: "QueenVEVO", ViewCount: 500},
	}}
	discoverer := NewWithClient(cfg, store, logging.NewNop(), client)

	result, err := discoverer.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if result.Seen != 2 || len(result.Enqueued) != 2 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	song, err := store.GetByVideoID(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if song.Artist != "Dua Lipa" || song.Title != "Houdini" {
		t.Fatalf("artist/title = %q/%q", song.Artist, song.Title)
	}
	if song.Status != songs.StatusPending {
		t.Fatalf("status = %s, want pending", song.Status)
	}
	if song.URL != "https://www.youtube.com/watch?v=vid1" {
		t.Fatalf("url = %q", song.URL)
	}
}

func TestTrendingSkipsTrackedVideos(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	client := &fakeClient{videos: []youtube.Video{
		{ID: "dup1", Title: "Artist - Song", ChannelTitle: "Artist"},
	}}
	discoverer := NewWithClient(cfg, store, logging.NewNop(), client)

	if _, err := discoverer.Trending(context.Background()); err != nil {
		t.Fatalf("first Trending: %v", err)
	}
	result, err := discoverer.Trending(context.Background())
	if err != nil {
		t.Fatalf("second Trending: %v", err)
	}
	if len(result.Enqueued) != 0 || result.Skipped != 1 {
		t.Fatalf("duplicate not skipped: %+v", result)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := NewWithClient(cfg, store, logging.NewNop(), &fakeClient{})

	if _, err := discoverer.Search(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearchForwardsQuery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	discoverer := NewWithClient(cfg, store, logging.NewNop(), client)

	if _, err := discoverer.Search(context.Background(), "karaoke classics"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if client.query != "karaoke classics" {
		t.Fatalf("query = %q", client.query)
	}
}

func TestSplitArtistTitle(t *testing.T) {
	cases := []struct {
		rawTitle   string
		channel    string
		wantArtist string
		wantTitle  string
	}{
		{"Dua Lipa - Houdini (Official Music Video)", "Dua Lipa", "Dua Lipa", "Houdini"},
		{"The Weeknd - Blinding Lights [Official Audio]", "The Weeknd", "The Weeknd", "Blinding Lights"},
		{"Bohemian Rhapsody", "Queen Official", "Queen Official", "Bohemian Rhapsody"},
		{"Levitating", "Dua Lipa - Topic", "Dua Lipa", "Levitating"},
		{"Shivers (Lyric Video)", "EdSheeranVEVO", "EdSheeran", "Shivers"},
		{"Artist: Song Name", "Channel", "Artist", "Song Name"},
	}
	for _, tc := range cases {
		artist, title := SplitArtistTitle(tc.rawTitle, tc.channel)
		if artist != tc.wantArtist || title != tc.wantTitle {
			t.Errorf("SplitArtistTitle(%q, %q) = %q/%q, want %q/%q",
				tc.rawTitle, tc.channel, artist, title, tc.wantArtist, tc.wantTitle)
		}
	}
}

func TestCleanTitleStripsDecorations(t *testing.T) {
	got := CleanTitle("Song   Name (Official Video) [4K Remaster]")
	if got != "Song Name" {
		t.Fatalf("CleanTitle = %q", got)
	}
}
