// Package discovery finds trending music videos on YouTube and enqueues
// them for karaoke processing.
package discovery

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"songforge/internal/config"
	"songforge/internal/logging"
	"songforge/internal/services"
	"songforge/internal/services/youtube"
	"songforge/internal/songs"
)

// Client is the subset of the YouTube API the discoverer needs.
type Client interface {
	MostPopular(ctx context.Context, region, categoryID string, maxResults int) ([]youtube.Video, error)
	Search(ctx context.Context, q, region, categoryID string, maxResults int) ([]youtube.Video, error)
}

// Discoverer sweeps YouTube charts and enqueues candidate songs.
type Discoverer struct {
	cfg    *config.Config
	store  *songs.Store
	logger *slog.Logger
	client Client
}

// Result summarizes one discovery sweep.
type Result struct {
	Seen     int
	Enqueued []*songs.Song
	Skipped  int
}

// New constructs a discoverer backed by the live YouTube API.
func New(cfg *config.Config, store *songs.Store, logger *slog.Logger) *Discoverer {
	client := youtube.NewClient(cfg.YouTube.APIKey, youtube.WithBaseURL(cfg.YouTube.BaseURL))
	return NewWithClient(cfg, store, logger, client)
}

// NewWithClient allows injecting the YouTube client (used in tests).
func NewWithClient(cfg *config.Config, store *songs.Store, logger *slog.Logger, client Client) *Discoverer {
	discoveryLogger := logger
	if discoveryLogger != nil {
		discoveryLogger = discoveryLogger.With(logging.String("component", "discovery"))
	}
	return &Discoverer{cfg: cfg, store: store, logger: discoveryLogger, client: client}
}

// Trending sweeps the mostPopular music chart for the configured region and
// enqueues every video not already tracked.
func (d *Discoverer) Trending(ctx context.Context) (Result, error) {
	videos, err := d.client.MostPopular(ctx, d.cfg.YouTube.Region, d.categoryID(), d.maxResults())
	if err != nil {
		return Result{}, err
	}
	return d.enqueue(ctx, videos)
}

// Search enqueues the top matches for a free-form query, ordered by views.
func (d *Discoverer) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, services.Wrap(services.ErrValidation, "discovery", "search", "search query is empty", nil)
	}
	videos, err := d.client.Search(ctx, query, d.cfg.YouTube.Region, d.categoryID(), d.maxResults())
	if err != nil {
		return Result{}, err
	}
	return d.enqueue(ctx, videos)
}

func (d *Discoverer) enqueue(ctx context.Context, videos []youtube.Video) (Result, error) {
	result := Result{Seen: len(videos)}
	for _, video := range videos {
		artist, title := SplitArtistTitle(video.Title, video.ChannelTitle)
		existing, err := d.store.GetByVideoID(ctx, video.ID)
		if err == nil {
			result.Skipped++
			d.logger.Debug("video already tracked",
				logging.String("video_id", video.ID),
				logging.String("status", string(existing.Status)),
			)
			continue
		}
		if !errors.Is(err, songs.ErrNotFound) {
			return result, err
		}

		song, err := d.store.Add(ctx, songs.NewSong{
			VideoID: video.ID,
			Title:   title,
			Artist:  artist,
			Channel: video.ChannelTitle,
			URL:     video.URL(),
		})
		if err != nil {
			if errors.Is(err, songs.ErrDuplicateSong) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Enqueued = append(result.Enqueued, song)
		d.logger.Info("song enqueued",
			logging.String("video_id", video.ID),
			logging.String("title", title),
			logging.String("artist", artist),
			logging.Int64("views", video.ViewCount),
		)
	}
	return result, nil
}

func (d *Discoverer) categoryID() string {
	if d.cfg.YouTube.CategoryID != "" {
		return d.cfg.YouTube.CategoryID
	}
	return youtube.CategoryMusic
}

func (d *Discoverer) maxResults() int {
	if d.cfg.YouTube.MaxResults > 0 {
		return d.cfg.YouTube.MaxResults
	}
	return 10
}
