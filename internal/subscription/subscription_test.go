package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"yt_relay/internal/model"
	"yt_relay/internal/storage"
)

type hubCall struct {
	form url.Values
}

// fakeHub responds with the queued status codes in order, then 202.
type fakeHub struct {
	calls    []hubCall
	statuses []int
	err      error
}

func (h *fakeHub) Do(req *http.Request) (*http.Response, error) {
	if h.err != nil {
		return nil, h.err
	}
	body, _ := io.ReadAll(req.Body)
	form, _ := url.ParseQuery(string(body))
	h.calls = append(h.calls, hubCall{form: form})

	status := 202
	if len(h.statuses) > 0 {
		status = h.statuses[0]
		h.statuses = h.statuses[1:]
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func newTestManager(t *testing.T, hub *fakeHub) (*Manager, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(store, hub, "https://hub.example/subscribe", "https://relay.example/webhook",
		6*time.Hour, 48*time.Hour, log)
	// Collapse the retry and pacing delays so tests run instantly.
	m.retryDelays = []time.Duration{0, 0, 0}
	m.interCallDelay = 0
	return m, store
}

func TestSubscribeSuccess(t *testing.T) {
	hub := &fakeHub{}
	m, store := newTestManager(t, hub)
	ctx := context.Background()

	if err := m.Subscribe(ctx, "UCchannel001"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(hub.calls) != 1 {
		t.Fatalf("hub calls = %d, want 1", len(hub.calls))
	}

	form := hub.calls[0].form
	if got := form.Get("hub.mode"); got != "subscribe" {
		t.Errorf("hub.mode = %q", got)
	}
	if got := form.Get("hub.topic"); got != Topic("UCchannel001") {
		t.Errorf("hub.topic = %q", got)
	}
	if got := form.Get("hub.callback"); got != "https://relay.example/webhook" {
		t.Errorf("hub.callback = %q", got)
	}
	if got := form.Get("hub.verify"); got != "async" {
		t.Errorf("hub.verify = %q", got)
	}

	sub, err := store.GetSubscription(ctx, "UCchannel001")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub == nil {
		t.Fatal("subscription not persisted")
	}
	if sub.Status != model.SubActive {
		t.Fatalf("status = %q, want active", sub.Status)
	}
	if sub.ExpiresAt == nil {
		t.Fatal("active subscription missing expiry")
	}
	lease := time.Until(*sub.ExpiresAt)
	if lease < 17*24*time.Hour || lease > 19*24*time.Hour {
		t.Fatalf("lease = %v, want about 18 days", lease)
	}
}

func TestSubscribeRetriesThenSucceeds(t *testing.T) {
	hub := &fakeHub{statuses: []int{503, 503}}
	m, store := newTestManager(t, hub)
	ctx := context.Background()

	if err := m.Subscribe(ctx, "UCchannel001"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(hub.calls) != 3 {
		t.Fatalf("hub calls = %d, want 3", len(hub.calls))
	}

	sub, err := store.GetSubscription(ctx, "UCchannel001")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Status != model.SubActive {
		t.Fatalf("status = %q, want active", sub.Status)
	}
}

func TestSubscribeExhaustedRetries(t *testing.T) {
	hub := &fakeHub{statuses: []int{500, 500, 500, 500}}
	m, store := newTestManager(t, hub)
	ctx := context.Background()

	err := m.Subscribe(ctx, "UCchannel001")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	// The delay table allows the initial attempt plus one retry per entry.
	if len(hub.calls) != 4 {
		t.Fatalf("hub calls = %d, want 4", len(hub.calls))
	}

	sub, serr := store.GetSubscription(ctx, "UCchannel001")
	if serr != nil {
		t.Fatalf("get subscription: %v", serr)
	}
	if sub == nil {
		t.Fatal("failure not persisted")
	}
	if sub.Status != model.SubFailed {
		t.Fatalf("status = %q, want failed", sub.Status)
	}
	if sub.RenewalAttempts != 1 {
		t.Fatalf("renewal attempts = %d, want 1", sub.RenewalAttempts)
	}
	if !strings.Contains(sub.ErrorMessage, "HTTP 500") {
		t.Fatalf("error message = %q", sub.ErrorMessage)
	}
}

func TestSubscribeTransportError(t *testing.T) {
	hub := &fakeHub{err: errors.New("connection refused")}
	m, _ := newTestManager(t, hub)

	if err := m.Subscribe(context.Background(), "UCchannel001"); err == nil {
		t.Fatal("expected error on transport failure")
	}
}

func TestSweepRenewsOnlyExpiring(t *testing.T) {
	hub := &fakeHub{}
	m, store := newTestManager(t, hub)
	ctx := context.Background()
	now := time.Now().UTC()

	// Inside the 48h lookahead: renewed. Outside: left alone.
	if err := store.UpsertSubscriptionActive(ctx, "UCsoon0001", Topic("UCsoon0001"), now.Add(10*time.Hour)); err != nil {
		t.Fatalf("seed soon: %v", err)
	}
	if err := store.UpsertSubscriptionActive(ctx, "UCfresh001", Topic("UCfresh001"), now.Add(72*time.Hour)); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	m.sweep(ctx)

	if len(hub.calls) != 1 {
		t.Fatalf("hub calls = %d, want 1", len(hub.calls))
	}
	if got := hub.calls[0].form.Get("hub.topic"); got != Topic("UCsoon0001") {
		t.Fatalf("renewed topic = %q, want %q", got, Topic("UCsoon0001"))
	}

	sub, err := store.GetSubscription(ctx, "UCsoon0001")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.ExpiresAt == nil || !sub.ExpiresAt.After(now.Add(17*24*time.Hour)) {
		t.Fatalf("lease not extended: %v", sub.ExpiresAt)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	// First renewal burns all four attempts on 500s, second succeeds.
	hub := &fakeHub{statuses: []int{500, 500, 500, 500}}
	m, store := newTestManager(t, hub)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.UpsertSubscriptionActive(ctx, "UCbad00001", Topic("UCbad00001"), now.Add(time.Hour)); err != nil {
		t.Fatalf("seed bad: %v", err)
	}
	if err := store.UpsertSubscriptionActive(ctx, "UCgood0001", Topic("UCgood0001"), now.Add(2*time.Hour)); err != nil {
		t.Fatalf("seed good: %v", err)
	}

	m.sweep(ctx)

	bad, err := store.GetSubscription(ctx, "UCbad00001")
	if err != nil {
		t.Fatalf("get bad: %v", err)
	}
	if bad.Status != model.SubFailed {
		t.Fatalf("bad status = %q, want failed", bad.Status)
	}

	good, err := store.GetSubscription(ctx, "UCgood0001")
	if err != nil {
		t.Fatalf("get good: %v", err)
	}
	if good.Status != model.SubActive || good.ExpiresAt == nil || !good.ExpiresAt.After(now.Add(17*24*time.Hour)) {
		t.Fatalf("good subscription not renewed: %+v", good)
	}
}

func TestTableBackoff(t *testing.T) {
	b := &tableBackoff{delays: []time.Duration{time.Second, 5 * time.Second}}

	d, stop := b.Next()
	if stop || d != time.Second {
		t.Fatalf("first = (%v, %v)", d, stop)
	}
	d, stop = b.Next()
	if stop || d != 5*time.Second {
		t.Fatalf("second = (%v, %v)", d, stop)
	}
	if _, stop = b.Next(); !stop {
		t.Fatal("backoff should stop past the table end")
	}
}

func TestTopic(t *testing.T) {
	want := "https://www.youtube.com/xml/feeds/videos.xml?channel_id=UCabc"
	if got := Topic("UCabc"); got != want {
		t.Fatalf("Topic = %q, want %q", got, want)
	}
}
