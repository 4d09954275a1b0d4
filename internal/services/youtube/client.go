// Package youtube wraps the YouTube Data API v3 for trending discovery,
// search, and video uploads.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"songforge/internal/services"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/youtube/v3"
	defaultUploadURL   = "https://www.googleapis.com/upload/youtube/v3"
	defaultHTTPTimeout = 30 * time.Second

	// CategoryMusic is the YouTube category ID for music videos.
	CategoryMusic = "10"
)

// Client wraps the YouTube Data API.
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	uploadURL   string
	httpClient  *http.Client
}

// Option customizes the YouTube client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
			c.uploadURL = c.baseURL
		}
	}
}

// WithAccessToken sets the OAuth token used for uploads.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = strings.TrimSpace(token)
	}
}

// NewClient constructs a YouTube Data API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		uploadURL:  defaultUploadURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Video is one discovered music video.
type Video struct {
	ID           string
	Title        string
	ChannelTitle string
	PublishedAt  string
	ViewCount    int64
}

// URL returns the canonical watch URL for the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

type videoListResponse struct {
	Items []struct {
		ID      json.RawMessage `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MostPopular lists the current trending videos for a region and category.
func (c *Client) MostPopular(ctx context.Context, region, categoryID string, maxResults int) ([]Video, error) {
	if c.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "discovery", "trending", "youtube api key is not configured", nil)
	}
	query := url.Values{}
	query.Set("part", "snippet,statistics")
	query.Set("chart", "mostPopular")
	query.Set("regionCode", region)
	query.Set("videoCategoryId", categoryID)
	query.Set("maxResults", strconv.Itoa(maxResults))
	query.Set("key", c.apiKey)

	body, err := c.get(ctx, "/videos", query, "trending")
	if err != nil {
		return nil, err
	}
	return parseVideoList(body, "trending")
}

// Search finds videos matching a query ordered by view count.
func (c *Client) Search(ctx context.Context, q, region, categoryID string, maxResults int) ([]Video, error) {
	if c.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "discovery", "search", "youtube api key is not configured", nil)
	}
	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("q", q)
	query.Set("type", "video")
	query.Set("videoCategoryId", categoryID)
	query.Set("regionCode", region)
	query.Set("order", "viewCount")
	query.Set("maxResults", strconv.Itoa(maxResults))
	query.Set("key", c.apiKey)

	body, err := c.get(ctx, "/search", query, "search")
	if err != nil {
		return nil, err
	}
	return parseVideoList(body, "search")
}

func (c *Client) get(ctx context.Context, path string, query url.Values, operation string) ([]byte, error) {
	endpoint := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "discovery", operation, "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "discovery", operation, "youtube api request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "discovery", operation, "read youtube api response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("discovery", operation, resp.StatusCode, body)
	}
	return body, nil
}

func parseVideoList(body []byte, operation string) ([]Video, error) {
	var payload videoListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "discovery", operation, "decode youtube api response", err)
	}
	if payload.Error != nil {
		return nil, services.Wrap(services.ErrTransient, "discovery", operation, "youtube api error: "+payload.Error.Message, nil)
	}

	videos := make([]Video, 0, len(payload.Items))
	for _, item := range payload.Items {
		video := Video{
			Title:        item.Snippet.Title,
			ChannelTitle: item.Snippet.ChannelTitle,
			PublishedAt:  item.Snippet.PublishedAt,
		}
		video.ID = decodeVideoID(item.ID)
		if video.ID == "" || video.Title == "" {
			continue
		}
		if item.Statistics.ViewCount != "" {
			video.ViewCount, _ = strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
		}
		videos = append(videos, video)
	}
	return videos, nil
}

// decodeVideoID handles both id shapes the API returns: a bare string from
// videos.list and an object with videoId from search.list.
func decodeVideoID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var nested struct {
		VideoID string `json:"videoId"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return nested.VideoID
	}
	return ""
}

func classifyStatus(stage, operation string, status int, body []byte) error {
	detail := fmt.Sprintf("youtube api http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuota, stage, operation, detail, nil)
	case status == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, stage, operation, detail, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, stage, operation, detail, nil)
	case status >= 500:
		return services.Wrap(services.ErrTransient, stage, operation, detail, nil)
	default:
		return services.Wrap(services.ErrValidation, stage, operation, detail, nil)
	}
}
