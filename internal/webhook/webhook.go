// Package webhook receives WebSub push deliveries from the hub: the GET
// verification handshake and the POST Atom feed notifications.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"yt_relay/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// Enqueuer submits jobs extracted from a delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.Job) (bool, error)
}

// Handler answers the hub's handshake and ingests deliveries.
type Handler struct {
	queue Enqueuer
	log   *slog.Logger
}

// NewHandler creates a webhook Handler enqueuing into the given queue.
func NewHandler(queue Enqueuer, log *slog.Logger) *Handler {
	return &Handler{queue: queue, log: log}
}

// Challenge handles the hub's GET verification: the challenge token is
// echoed verbatim, anything else is acknowledged with an empty 200.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	if challenge := r.URL.Query().Get("hub.challenge"); challenge != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Delivery handles a POST push notification. Malformed feed documents are
// acknowledged and dropped: a 4xx/5xx would only make the hub retry the same
// broken payload. Enqueue failures likewise do not change the ack; the
// durable dedup downstream re-establishes correctness.
func (h *Handler) Delivery(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	receivedAt := time.Now().UTC()

	if !isTextContentType(r.Header.Get("Content-Type")) {
		h.log.Warn("delivery with unexpected content type", "request_id", requestID, "content_type", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.log.Info("webhook received", "request_id", requestID, "body_size", len(body))

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		// Ack anyway to avoid repeated retries.
		h.log.Warn("feed parse failed", "request_id", requestID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, item := range feed.Items {
		entry := extractEntry(feed, item, receivedAt)
		if entry == nil {
			continue
		}
		created, err := h.queue.Enqueue(r.Context(), entry)
		switch {
		case err != nil:
			h.log.Error("enqueue failed", "request_id", requestID, "video_id", entry.VideoID, "error", err)
		case created:
			h.log.Info("enqueued video job", "request_id", requestID, "video_id", entry.VideoID, "channel_id", entry.ChannelID)
		default:
			h.log.Debug("duplicate delivery", "request_id", requestID, "video_id", entry.VideoID)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// extractEntry derives a job from one feed entry. Entries without a video
// and channel identity are skipped, not errors.
func extractEntry(feed *gofeed.Feed, item *gofeed.Item, receivedAt time.Time) *model.Job {
	videoID := extValue(item.Extensions, "yt", "videoId")
	if videoID == "" {
		videoID = trailingSegment(item.GUID, ":")
	}

	channelID := extValue(item.Extensions, "yt", "channelId")
	if channelID == "" {
		channelID = extValue(feed.Extensions, "yt", "channelId")
	}
	if channelID == "" {
		channelID = channelFromLinks(feed, item)
	}

	if videoID == "" || channelID == "" {
		return nil
	}

	job := &model.Job{
		VideoID:    videoID,
		ChannelID:  channelID,
		Title:      item.Title,
		ReceivedAt: receivedAt,
	}
	if item.PublishedParsed != nil {
		job.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		job.PublishedAt = item.UpdatedParsed
	}
	return job
}

func extValue(exts ext.Extensions, prefix, name string) string {
	values, ok := exts[prefix][name]
	if !ok || len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// channelFromLinks derives the channel from an entry or feed link of the
// form https://www.youtube.com/channel/UC….
func channelFromLinks(feed *gofeed.Feed, item *gofeed.Item) string {
	for _, link := range append([]string{item.Link}, feed.Link) {
		if strings.Contains(link, "/channel/") {
			return trailingSegment(strings.TrimSuffix(link, "/"), "/")
		}
	}
	return ""
}

func trailingSegment(s, sep string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, sep)
	return parts[len(parts)-1]
}

func isTextContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	return strings.HasPrefix(ct, "text/") || strings.HasSuffix(ct, "xml")
}
