// Package model defines the domain types used across the application.
package model

import "time"

// Video represents a published video that passed all filters.
// At most one record exists per VideoID; rows are immutable once written.
type Video struct {
	VideoID     string
	ChannelID   string
	Title       string
	PublishedAt time.Time
	ReceivedAt  time.Time
}

// SubscriptionStatus is the lifecycle state of a hub subscription.
type SubscriptionStatus string

// Subscription statuses written by the lifecycle manager. Expiring and
// expired are derived from expires_at by readers, never stored.
const (
	SubPending  SubscriptionStatus = "pending"
	SubActive   SubscriptionStatus = "active"
	SubExpiring SubscriptionStatus = "expiring"
	SubExpired  SubscriptionStatus = "expired"
	SubFailed   SubscriptionStatus = "failed"
)

// Subscription tracks the WebSub lease for one channel.
type Subscription struct {
	ChannelID       string
	Topic           string
	Status          SubscriptionStatus
	ExpiresAt       *time.Time
	LastRenewedAt   *time.Time
	RenewalAttempts int
	ErrorMessage    string
	CreatedAt       time.Time
}

// Account groups notification targets under a display name.
type Account struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// AccountTargets is the result of the watcher lookup: one interested
// account and the Telegram chats its notifications go to.
type AccountTargets struct {
	AccountID int64
	Name      string
	ChatIDs   []int64
}

// JobStatus is the queue state of a job.
type JobStatus string

// Job statuses. Completed jobs are deleted, not marked.
const (
	JobPending JobStatus = "pending"
	JobActive  JobStatus = "active"
	JobFailed  JobStatus = "failed"
)

// Job is the queue's unit of work. Key equals the video ID and enforces
// enqueue-time dedup via a unique constraint.
type Job struct {
	ID            int64
	Key           string
	VideoID       string
	ChannelID     string
	Title         string
	PublishedAt   *time.Time
	ReceivedAt    time.Time
	Status        JobStatus
	Attempts      int
	StalledCount  int
	NextAttemptAt time.Time
	LockedAt      *time.Time
	LockedBy      string
	LastError     string
	CreatedAt     time.Time
	FailedAt      *time.Time
}

// SubscriptionHealth is the derived per-feed health reported by the
// accounts listing for dashboards.
type SubscriptionHealth struct {
	ChannelID        string
	Status           SubscriptionStatus
	ExpiresAt        *time.Time
	LastRenewedAt    *time.Time
	ErrorMessage     string
	Health           string
	HoursUntilExpiry float64
}
