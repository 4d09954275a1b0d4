// Package ytdlp wraps yt-dlp for fetching YouTube audio and metadata.
package ytdlp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	goytdlp "github.com/lrstanley/go-ytdlp"

	"songforge/internal/services"
)

const stageName = "downloading"

// Metadata holds the fields songforge needs from a video's info JSON.
type Metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Track    string  `json:"track"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

// BestArtist picks the most reliable artist field, channel and uploader as
// fallbacks.
func (m Metadata) BestArtist() string {
	for _, candidate := range []string{m.Artist, m.Channel, m.Uploader} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return "Unknown Artist"
}

// Service downloads audio tracks with yt-dlp.
type Service struct {
	downloadDir string
	downloader  func(ctx context.Context, url, dest string) error
	prober      func(ctx context.Context, url string) (string, error)
}

// New creates a download service writing WAV files into downloadDir.
func New(downloadDir string) *Service {
	s := &Service{downloadDir: downloadDir}
	s.downloader = s.runDownload
	s.prober = s.runProbe
	return s
}

// WithDownloader sets a custom download function (for testing).
func (s *Service) WithDownloader(fn func(ctx context.Context, url, dest string) error) {
	s.downloader = fn
}

// WithProber sets a custom metadata fetch function (for testing).
func (s *Service) WithProber(fn func(ctx context.Context, url string) (string, error)) {
	s.prober = fn
}

// Download fetches the audio track for a video as WAV and returns the file
// path. The destination is keyed by video ID so re-downloads overwrite
// rather than accumulate.
func (s *Service) Download(ctx context.Context, videoID, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "download", "url is required", nil)
	}
	if err := os.MkdirAll(s.downloadDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "download", "create download directory", err)
	}

	dest := filepath.Join(s.downloadDir, videoID+".wav")
	if err := s.downloader(ctx, url, dest); err != nil {
		return "", classify("download", url, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "download", "yt-dlp reported success but produced no file", err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrExternalTool, stageName, "download", "downloaded audio file is empty", nil)
	}
	return dest, nil
}

// FetchMetadata returns the video's info JSON fields without downloading.
func (s *Service) FetchMetadata(ctx context.Context, url string) (Metadata, error) {
	var meta Metadata
	if strings.TrimSpace(url) == "" {
		return meta, services.Wrap(services.ErrValidation, stageName, "metadata", "url is required", nil)
	}
	payload, err := s.prober(ctx, url)
	if err != nil {
		return meta, classify("metadata", url, err)
	}
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return meta, services.Wrap(services.ErrExternalTool, stageName, "metadata", "parse yt-dlp info json", err)
	}
	if strings.TrimSpace(meta.ID) == "" {
		return meta, services.Wrap(services.ErrExternalTool, stageName, "metadata", "info json missing video id", nil)
	}
	return meta, nil
}

func (s *Service) runDownload(ctx context.Context, url, dest string) error {
	cmd := goytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat("wav").
		Output(dest)
	_, err := cmd.Run(ctx, url)
	return err
}

func (s *Service) runProbe(ctx context.Context, url string) (string, error) {
	cmd := goytdlp.New().
		NoPlaylist().
		SkipDownload().
		DumpJSON()
	result, err := cmd.Run(ctx, url)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// classify converts yt-dlp failures into the error taxonomy. Videos that are
// gone or inaccessible will never succeed on retry; everything else is
// assumed transient.
func classify(operation, url string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "private video"),
		strings.Contains(msg, "sign in to confirm your age"),
		strings.Contains(msg, "copyright"),
		strings.Contains(msg, "account associated with this video has been terminated"):
		return services.Wrap(services.ErrValidation, stageName, operation, "video is not accessible: "+url, err)
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "has been removed"),
		strings.Contains(msg, "404"):
		return services.Wrap(services.ErrNotFound, stageName, operation, "video is unavailable: "+url, err)
	case strings.Contains(msg, "http error 429"), strings.Contains(msg, "rate limit"):
		return services.Wrap(services.ErrQuota, stageName, operation, "rate limited by youtube", err)
	default:
		return services.Wrap(services.ErrExternalTool, stageName, operation, "yt-dlp failed", err)
	}
}
