package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	channelURLRe  = regexp.MustCompile(`youtube\.com/channel/(UC[0-9A-Za-z_-]+)`)
	handleURLRe   = regexp.MustCompile(`youtube\.com/@([^/?]+)`)
	userURLRe     = regexp.MustCompile(`youtube\.com/user/([^/?]+)`)
	canonicalRe   = regexp.MustCompile(`<link rel="canonical" href="https://www\.youtube\.com/channel/(UC[^"]+)"`)
	externalIDRe  = regexp.MustCompile(`"externalChannelId"\s*:\s*"([^"]+)"`)
	channelIDJSON = regexp.MustCompile(`"channelId"\s*:\s*"([^"]+)"`)
)

// ResolveChannelID extracts a channel ID (UC…) from a channel, @handle or
// /user/ URL, falling back to scraping the page when the API cannot help.
func (c *Client) ResolveChannelID(ctx context.Context, rawURL string) (string, error) {
	if m := channelURLRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}

	var channelID string
	if c.apiKey != "" {
		if m := handleURLRe.FindStringSubmatch(rawURL); m != nil {
			channelID = c.searchChannelByHandle(ctx, m[1])
		}
		if channelID == "" {
			if m := userURLRe.FindStringSubmatch(rawURL); m != nil {
				channelID = c.channelForUsername(ctx, m[1])
			}
		}
	}

	if channelID == "" {
		var err error
		channelID, err = c.scrapeChannelID(ctx, rawURL)
		if err != nil {
			return "", err
		}
	}

	if !strings.HasPrefix(channelID, "UC") {
		return "", fmt.Errorf("channel id not found in %q", rawURL)
	}
	return channelID, nil
}

// searchChannelByHandle looks a @handle up via the search API, preferring an
// exact customUrl match among the results.
func (c *Client) searchChannelByHandle(ctx context.Context, handle string) string {
	u := fmt.Sprintf("%s/search?part=snippet&type=channel&maxResults=5&q=%s&key=%s",
		c.apiBase, url.QueryEscape(handle), url.QueryEscape(c.apiKey))

	var resp struct {
		Items []struct {
			ID struct {
				ChannelID string `json:"channelId"`
			} `json:"id"`
			Snippet struct {
				CustomURL string `json:"customUrl"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if !c.getJSON(ctx, u, &resp) || len(resp.Items) == 0 {
		return ""
	}

	best := resp.Items[0]
	for _, item := range resp.Items {
		if strings.EqualFold(item.Snippet.CustomURL, handle) {
			best = item
			break
		}
	}
	return best.ID.ChannelID
}

func (c *Client) channelForUsername(ctx context.Context, username string) string {
	u := fmt.Sprintf("%s/channels?part=id&forUsername=%s&key=%s",
		c.apiBase, url.QueryEscape(username), url.QueryEscape(c.apiKey))

	var resp struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if !c.getJSON(ctx, u, &resp) || len(resp.Items) == 0 {
		return ""
	}
	return resp.Items[0].ID
}

func (c *Client) scrapeChannelID(ctx context.Context, rawURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch channel page: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read channel page: %w", err)
	}

	html := string(body)
	for _, re := range []*regexp.Regexp{canonicalRe, externalIDRe, channelIDJSON} {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("channel id not found in page")
}
