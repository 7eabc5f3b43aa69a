// Package subscription manages WebSub leases: the hub subscribe handshake
// with bounded retries, and the periodic renewal sweep.
package subscription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"yt_relay/internal/storage"
)

const (
	topicFormat    = "https://www.youtube.com/xml/feeds/videos.xml?channel_id=%s"
	leaseDuration  = 18 * 24 * time.Hour // YouTube's hub grants ~18 day leases
	requestTimeout = 10 * time.Second
	startupDelay   = 10 * time.Second
)

// subscribeDelays is the escalating wait between handshake attempts; the
// table length bounds the retries.
var subscribeDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager performs hub handshakes and keeps leases renewed.
type Manager struct {
	store       storage.Storage
	http        HTTPClient
	hubURL      string
	callbackURL string
	log         *slog.Logger

	interval       time.Duration
	lookahead      time.Duration
	interCallDelay time.Duration
	retryDelays    []time.Duration
}

// New creates a Manager sweeping every interval and renewing leases that
// expire within lookahead.
func New(store storage.Storage, httpClient HTTPClient, hubURL, callbackURL string, interval, lookahead time.Duration, log *slog.Logger) *Manager {
	return &Manager{
		store:          store,
		http:           httpClient,
		hubURL:         hubURL,
		callbackURL:    callbackURL,
		log:            log,
		interval:       interval,
		lookahead:      lookahead,
		interCallDelay: time.Second,
		retryDelays:    subscribeDelays,
	}
}

// Topic returns the hub topic URL for a channel.
func Topic(channelID string) string {
	return fmt.Sprintf(topicFormat, channelID)
}

// Subscribe performs the hub handshake for a channel, retrying over the
// fixed delay table. The outcome is persisted either way: success resets the
// lease, exhausted retries record the failure.
func (m *Manager) Subscribe(ctx context.Context, channelID string) error {
	topic := Topic(channelID)

	err := retry.Do(ctx, &tableBackoff{delays: m.retryDelays}, func(ctx context.Context) error {
		if err := m.attempt(ctx, topic); err != nil {
			m.log.Warn("subscribe attempt failed", "channel_id", channelID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if uerr := m.store.UpsertSubscriptionFailed(ctx, channelID, topic, err.Error()); uerr != nil {
			m.log.Error("persist subscription failure", "channel_id", channelID, "error", uerr)
		}
		m.log.Error("subscription failed after retries", "channel_id", channelID, "error", err)
		return fmt.Errorf("subscribe %s: %w", channelID, err)
	}

	expiresAt := time.Now().UTC().Add(leaseDuration)
	if err := m.store.UpsertSubscriptionActive(ctx, channelID, topic, expiresAt); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	m.log.Info("subscription successful", "channel_id", channelID, "expires_at", expiresAt)
	return nil
}

func (m *Manager) attempt(ctx context.Context, topic string) error {
	form := url.Values{}
	form.Set("hub.mode", "subscribe")
	form.Set("hub.topic", topic)
	form.Set("hub.callback", m.callbackURL)
	form.Set("hub.verify", "async")

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("hub request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Run sweeps once shortly after startup and then on every interval tick,
// blocking until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}
	m.sweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep renews every subscription whose lease ends inside the lookahead
// window, serially with a small delay to respect the hub's rate limits.
func (m *Manager) sweep(ctx context.Context) {
	subs, err := m.store.ListExpiringSubscriptions(ctx, time.Now().UTC().Add(m.lookahead))
	if err != nil {
		m.log.Error("list expiring subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		m.log.Debug("no subscriptions due for renewal")
		return
	}

	m.log.Info("renewal sweep", "count", len(subs))
	for i, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.interCallDelay):
			}
		}
		if err := m.Subscribe(ctx, sub.ChannelID); err != nil {
			// Already persisted; the next sweep retries.
			continue
		}
	}
}

// tableBackoff steps through a fixed delay table and stops after the last
// entry, making the retry schedule data rather than code.
type tableBackoff struct {
	delays []time.Duration
	next   int
}

func (b *tableBackoff) Next() (time.Duration, bool) {
	if b.next >= len(b.delays) {
		return 0, true
	}
	d := b.delays[b.next]
	b.next++
	return d, false
}
