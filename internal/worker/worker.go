// Package worker implements the per-job filter pipeline: dedup guards,
// business filters, metadata checks, the durable accept, and dispatch.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yt_relay/internal/cache"
	"yt_relay/internal/model"
	"yt_relay/internal/storage"
	"yt_relay/internal/telegram"
	"yt_relay/internal/youtube"
)

const guardTTL = 300 * time.Second

// Outcome is the terminal state of one processed job.
type Outcome string

// Pipeline outcomes. Duplicate and filtered are successful no-ops.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFiltered  Outcome = "filtered"
)

// Resolver fetches authoritative video metadata; nil means unknown.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) *youtube.Metadata
	ResolveFull(ctx context.Context, videoID string) *youtube.Metadata
}

// Dispatcher fans a notification out to Telegram targets.
type Dispatcher interface {
	SendToTargets(chatIDs []int64, text string) error
}

// Options hold the configurable filter policy.
type Options struct {
	Keywords   []string // lower-cased title denylist
	MinSeconds int      // duration must strictly exceed this
	MaxSeconds int      // 0 disables the upper bound; otherwise strictly below
	RequireHD  bool     // demand hd definition plus a maxres thumbnail
}

// Pipeline processes queue jobs.
type Pipeline struct {
	store      storage.Storage
	cache      cache.Cache
	resolver   Resolver
	dispatcher Dispatcher
	log        *slog.Logger
	opts       Options
}

// New creates a Pipeline.
func New(store storage.Storage, c cache.Cache, resolver Resolver, dispatcher Dispatcher, log *slog.Logger, opts Options) *Pipeline {
	return &Pipeline{
		store:      store,
		cache:      c,
		resolver:   resolver,
		dispatcher: dispatcher,
		log:        log,
		opts:       opts,
	}
}

// Handle adapts Process to the queue's handler signature.
func (p *Pipeline) Handle(ctx context.Context, job *model.Job) error {
	_, err := p.Process(ctx, job)
	return err
}

// Process runs a job through the ordered filter sequence. Cheap and selective
// checks run first so filtered videos never spend API quota.
func (p *Pipeline) Process(ctx context.Context, job *model.Job) (Outcome, error) {
	start := time.Now()
	p.log.Info("processing start", "video_id", job.VideoID, "channel_id", job.ChannelID)

	// Processing guard: narrows the window in which two workers race on
	// re-delivered copies of the same video. The idempotent insert below is
	// the actual correctness backstop.
	guardKey := "proc:" + job.VideoID
	held, err := p.cache.SetNX(ctx, guardKey, "1", guardTTL)
	if err != nil {
		p.log.Warn("guard acquire", "video_id", job.VideoID, "error", err)
	} else if !held {
		p.log.Info("already processing", "video_id", job.VideoID)
		return OutcomeDuplicate, nil
	}
	if err == nil {
		defer func() {
			if derr := p.cache.Delete(context.WithoutCancel(ctx), guardKey); derr != nil {
				p.log.Warn("guard release", "video_id", job.VideoID, "error", derr)
			}
		}()
	}

	exists, err := p.store.VideoExists(ctx, job.VideoID)
	if err != nil {
		return "", fmt.Errorf("check video: %w", err)
	}
	if exists {
		p.log.Info("already processed", "video_id", job.VideoID)
		return OutcomeDuplicate, nil
	}

	ignored, err := p.store.IsChannelIgnored(ctx, job.ChannelID)
	if err != nil {
		return "", fmt.Errorf("check ignored channel: %w", err)
	}
	if ignored {
		p.log.Info("filtered: ignored channel", "video_id", job.VideoID, "channel_id", job.ChannelID)
		return OutcomeFiltered, nil
	}

	if keyword := p.matchKeyword(job.Title); keyword != "" {
		p.log.Info("filtered by title keyword", "video_id", job.VideoID, "title", job.Title, "keyword", keyword)
		return OutcomeFiltered, nil
	}

	// The HD check needs the snippet; the minimal field set saves quota
	// otherwise.
	var meta *youtube.Metadata
	if p.opts.RequireHD {
		meta = p.resolver.ResolveFull(ctx, job.VideoID)
	} else {
		meta = p.resolver.Resolve(ctx, job.VideoID)
	}
	if meta == nil {
		p.log.Warn("no video details", "video_id", job.VideoID)
		return OutcomeFiltered, nil
	}

	if meta.PrivacyStatus != "public" {
		p.log.Info("filtered: non-public video", "video_id", job.VideoID, "privacy", meta.PrivacyStatus)
		return OutcomeFiltered, nil
	}

	seconds := youtube.ParseDuration(meta.Duration)
	if seconds <= p.opts.MinSeconds || (p.opts.MaxSeconds > 0 && seconds >= p.opts.MaxSeconds) {
		p.log.Info("filtered by duration", "video_id", job.VideoID, "seconds", seconds)
		return OutcomeFiltered, nil
	}

	if p.opts.RequireHD && (meta.Definition != "hd" || !meta.HasMaxresThumbnail) {
		p.log.Info("filtered by quality", "video_id", job.VideoID, "definition", meta.Definition)
		return OutcomeFiltered, nil
	}

	return p.accept(ctx, job, meta, start)
}

func (p *Pipeline) accept(ctx context.Context, job *model.Job, meta *youtube.Metadata, start time.Time) (Outcome, error) {
	video := model.Video{
		VideoID:     job.VideoID,
		ChannelID:   job.ChannelID,
		Title:       job.Title,
		PublishedAt: publishedAt(job, meta),
		ReceivedAt:  job.ReceivedAt,
	}
	inserted, err := p.store.InsertVideo(ctx, &video)
	if err != nil {
		return "", fmt.Errorf("insert video: %w", err)
	}
	if !inserted {
		// A concurrent worker won the race past the guard; its dispatch is
		// the real one.
		p.log.Info("concurrent insert, skipping dispatch", "video_id", job.VideoID)
		return OutcomeDuplicate, nil
	}

	watchers, err := p.store.AccountsWatching(ctx, job.ChannelID)
	if err != nil {
		return "", fmt.Errorf("lookup watchers: %w", err)
	}
	if len(watchers) == 0 {
		p.log.Info("no accounts subscribed", "channel_id", job.ChannelID)
		return OutcomeAccepted, nil
	}

	title := job.Title
	if title == "" {
		title = meta.Title
	}

	attempted, failed := 0, 0
	var firstErr error
	for _, acc := range watchers {
		if len(acc.ChatIDs) == 0 {
			continue
		}
		attempted++
		text := telegram.FormatNotification(acc.Name, title, job.VideoID)
		if err := p.dispatcher.SendToTargets(acc.ChatIDs, text); err != nil {
			p.log.Error("dispatch failed", "video_id", job.VideoID, "account_id", acc.AccountID, "error", err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if attempted > 0 && failed == attempted {
		// Re-raise so the queue retries. Targets that already got the
		// message on an earlier attempt may see it again; losing the
		// notification entirely would be worse.
		return "", fmt.Errorf("dispatch to all %d accounts failed: %w", attempted, firstErr)
	}

	p.log.Info("processed successfully", "video_id", job.VideoID, "accounts", attempted, "elapsed", time.Since(start))
	return OutcomeAccepted, nil
}

func (p *Pipeline) matchKeyword(title string) string {
	lower := strings.ToLower(title)
	for _, k := range p.opts.Keywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}

func publishedAt(job *model.Job, meta *youtube.Metadata) time.Time {
	if job.PublishedAt != nil {
		return *job.PublishedAt
	}
	if !meta.PublishedAt.IsZero() {
		return meta.PublishedAt
	}
	return time.Now().UTC()
}
