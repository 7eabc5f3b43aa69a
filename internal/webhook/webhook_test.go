package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"yt_relay/internal/model"
)

type captureQueue struct {
	jobs    []*model.Job
	created bool
	err     error
}

func (q *captureQueue) Enqueue(_ context.Context, job *model.Job) (bool, error) {
	q.jobs = append(q.jobs, job)
	return q.created, q.err
}

func newTestHandler(q Enqueuer) *Handler {
	return NewHandler(q, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestChallengeEcho(t *testing.T) {
	h := newTestHandler(&captureQueue{})

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.challenge=abc123", nil)
	rec := httptest.NewRecorder()
	h.Challenge(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "abc123" {
		t.Fatalf("body = %q, want abc123", got)
	}
}

func TestChallengeWithoutToken(t *testing.T) {
	h := newTestHandler(&captureQueue{})

	req := httptest.NewRequest("GET", "/webhook", nil)
	rec := httptest.NewRecorder()
	h.Challenge(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", rec.Body.String())
	}
}

func TestDeliveryEnqueuesEntries(t *testing.T) {
	body, err := os.ReadFile("testdata/push.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	q := &captureQueue{created: true}
	h := newTestHandler(q)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/atom+xml")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(q.jobs))
	}

	want := []struct {
		videoID, channelID, title string
	}{
		{"vid00000001", "UCexample001", "Deep Dive: Structured Concurrency"},
		{"vid00000002", "UCexample001", "Weekly Shorts Live"},
	}
	for i, w := range want {
		job := q.jobs[i]
		got := []string{job.VideoID, job.ChannelID, job.Title}
		if diff := cmp.Diff([]string{w.videoID, w.channelID, w.title}, got); diff != "" {
			t.Errorf("job %d mismatch (-want +got):\n%s", i, diff)
		}
		if job.PublishedAt == nil {
			t.Errorf("job %d missing published time", i)
		}
		if job.ReceivedAt.IsZero() {
			t.Errorf("job %d missing received time", i)
		}
	}
}

func TestDeliveryMalformedBodyAcked(t *testing.T) {
	q := &captureQueue{created: true}
	h := newTestHandler(q)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("this is not xml <<<"))
	req.Header.Set("Content-Type", "application/atom+xml")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("enqueued %d jobs from garbage body", len(q.jobs))
	}
}

func TestDeliveryEmptyBodyRejected(t *testing.T) {
	h := newTestHandler(&captureQueue{})

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/atom+xml")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryBinaryContentTypeRejected(t *testing.T) {
	h := newTestHandler(&captureQueue{})

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("data"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryEnqueueErrorStillAcked(t *testing.T) {
	q := &captureQueue{err: errors.New("queue unavailable")}
	h := newTestHandler(q)

	body, err := os.ReadFile("testdata/push.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestExtractEntryFallbacks(t *testing.T) {
	// Entries missing the yt extensions fall back to the GUID and link.
	body := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <link rel="alternate" href="https://www.youtube.com/channel/UCfallback01"/>
  <title>Fallback feed</title>
  <entry>
    <id>yt:video:vidFallback1</id>
    <title>No Extensions Here</title>
    <updated>2024-03-01T12:00:05+00:00</updated>
  </entry>
  <entry>
    <id></id>
    <title>Skipped: no identity</title>
  </entry>
</feed>`

	q := &captureQueue{created: true}
	h := newTestHandler(q)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	h.Delivery(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.VideoID != "vidFallback1" {
		t.Errorf("video id = %q, want vidFallback1", job.VideoID)
	}
	if job.ChannelID != "UCfallback01" {
		t.Errorf("channel id = %q, want UCfallback01", job.ChannelID)
	}
}

func TestIsTextContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"", true},
		{"text/xml", true},
		{"application/atom+xml; charset=UTF-8", true},
		{"application/xml", true},
		{"application/json", false},
		{"application/octet-stream", false},
	}
	for _, tt := range tests {
		if got := isTextContentType(tt.ct); got != tt.want {
			t.Errorf("isTextContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
