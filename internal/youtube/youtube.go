// Package youtube resolves authoritative video metadata from the YouTube
// Data API, cache-first, and resolves channel IDs from channel URLs.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"yt_relay/internal/cache"
)

const (
	defaultAPIBase = "https://www.googleapis.com/youtube/v3"
	requestTimeout = 10 * time.Second
	metadataTTL    = time.Hour
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Metadata holds the per-video attributes the filter pipeline needs.
// Title and thumbnail data are only populated by ResolveFull.
type Metadata struct {
	VideoID            string    `json:"videoId"`
	Title              string    `json:"title,omitempty"`
	PublishedAt        time.Time `json:"publishedAt,omitempty"`
	PrivacyStatus      string    `json:"privacyStatus"`
	Duration           string    `json:"duration"`
	Definition         string    `json:"definition"`
	HasMaxresThumbnail bool      `json:"hasMaxresThumbnail"`
}

// Client calls the YouTube Data API with a cache in front of it.
type Client struct {
	http    HTTPClient
	cache   cache.Cache
	apiKey  string
	apiBase string
	log     *slog.Logger
}

// New creates a Client. An empty API key is allowed; every resolve then
// reports the metadata as unavailable.
func New(httpClient HTTPClient, c cache.Cache, apiKey string, log *slog.Logger) *Client {
	return &Client{
		http:    httpClient,
		cache:   c,
		apiKey:  apiKey,
		apiBase: defaultAPIBase,
		log:     log,
	}
}

// SetAPIBase overrides the API endpoint (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// Resolve fetches contentDetails and status for a video. A nil result means
// the video is unknown or unfetchable; callers treat that as a rejection,
// never as a fault.
func (c *Client) Resolve(ctx context.Context, videoID string) *Metadata {
	return c.resolve(ctx, videoID, false)
}

// ResolveFull additionally fetches the snippet (title, thumbnails), at the
// cost of extra API quota. Cached separately from Resolve results.
func (c *Client) ResolveFull(ctx context.Context, videoID string) *Metadata {
	return c.resolve(ctx, videoID, true)
}

func (c *Client) resolve(ctx context.Context, videoID string, full bool) *Metadata {
	key := fmt.Sprintf("video:%s:%t", videoID, full)
	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("metadata cache read", "video_id", videoID, "error", err)
	} else if ok {
		var m Metadata
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return &m
		}
	}

	if c.apiKey == "" {
		c.log.Warn("YOUTUBE_API_KEY not set; cannot fetch video details", "video_id", videoID)
		return nil
	}

	parts := "contentDetails,status"
	if full {
		parts = "snippet,contentDetails,status"
	}
	u := fmt.Sprintf("%s/videos?part=%s&id=%s&key=%s",
		c.apiBase, url.QueryEscape(parts), url.QueryEscape(videoID), url.QueryEscape(c.apiKey))

	var resp videosResponse
	if !c.getJSON(ctx, u, &resp) {
		return nil
	}
	if len(resp.Items) == 0 {
		return nil
	}

	item := resp.Items[0]
	m := &Metadata{
		VideoID:            videoID,
		Title:              item.Snippet.Title,
		PublishedAt:        item.Snippet.PublishedAt,
		PrivacyStatus:      item.Status.PrivacyStatus,
		Duration:           item.ContentDetails.Duration,
		Definition:         item.ContentDetails.Definition,
		HasMaxresThumbnail: item.Snippet.Thumbnails.Maxres != nil,
	}

	if raw, err := json.Marshal(m); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), metadataTTL); err != nil {
			c.log.Warn("metadata cache write", "video_id", videoID, "error", err)
		}
	}
	return m
}

// getJSON performs a GET with the standard timeout and decodes the body.
// Any failure is logged and reported as false, not raised.
func (c *Client) getJSON(ctx context.Context, u string, out any) bool {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		c.log.Warn("youtube api request", "error", err)
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("youtube api call", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("youtube api status", "status", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		c.log.Warn("youtube api read", "error", err)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.log.Warn("youtube api decode", "error", err)
		return false
	}
	return true
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title       string    `json:"title"`
			PublishedAt time.Time `json:"publishedAt"`
			Thumbnails  struct {
				Maxres *struct {
					URL string `json:"url"`
				} `json:"maxres"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration   string `json:"duration"`
			Definition string `json:"definition"`
		} `json:"contentDetails"`
		Status struct {
			PrivacyStatus string `json:"privacyStatus"`
		} `json:"status"`
	} `json:"items"`
}

var durationRe = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseDuration converts an ISO-8601 video duration (PT1H2M3S) to seconds.
// Unparseable input yields 0.
func ParseDuration(duration string) int {
	m := durationRe.FindStringSubmatch(duration)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	min, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	s, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	return h*3600 + min*60 + s
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
