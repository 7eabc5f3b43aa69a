// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"yt_relay/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// Videos. InsertVideo is idempotent: re-inserting an existing video_id
	// reports false and changes nothing.
	InsertVideo(ctx context.Context, v *model.Video) (bool, error)
	VideoExists(ctx context.Context, videoID string) (bool, error)
	PruneVideosBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Subscriptions, one row per channel, upserted by the lifecycle manager.
	UpsertSubscriptionActive(ctx context.Context, channelID, topic string, expiresAt time.Time) error
	UpsertSubscriptionFailed(ctx context.Context, channelID, topic, errMsg string) error
	GetSubscription(ctx context.Context, channelID string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListExpiringSubscriptions(ctx context.Context, before time.Time) ([]model.Subscription, error)

	// Accounts, feeds, targets.
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	AddFeed(ctx context.Context, accountID int64, channelID string) error
	RemoveFeed(ctx context.Context, accountID int64, channelID string) error
	ListFeeds(ctx context.Context, accountID int64) ([]string, error)
	FeedHealth(ctx context.Context, accountID int64, now time.Time) ([]model.SubscriptionHealth, error)
	AddTarget(ctx context.Context, accountID, chatID int64) error
	RemoveTarget(ctx context.Context, accountID, chatID int64) error
	ListTargets(ctx context.Context, accountID int64) ([]int64, error)
	AccountsWatching(ctx context.Context, channelID string) ([]model.AccountTargets, error)
	IgnoreChannel(ctx context.Context, channelID, reason string) error
	IsChannelIgnored(ctx context.Context, channelID string) (bool, error)

	// Jobs, consumed by the queue.
	EnqueueJob(ctx context.Context, j *model.Job) (bool, error)
	ClaimJob(ctx context.Context, workerID string, now, lockCutoff time.Time, maxStalled int) (*model.Job, error)
	RenewJobLock(ctx context.Context, id int64, workerID string, now time.Time) error
	CompleteJob(ctx context.Context, id int64) error
	RetryJob(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error
	FailJob(ctx context.Context, id int64, lastError string, now time.Time) error
	FailStalledJobs(ctx context.Context, lockCutoff time.Time, maxStalled int, now time.Time) (int64, error)
	PurgeFailedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetJob(ctx context.Context, key string) (*model.Job, error)

	Close() error
}
