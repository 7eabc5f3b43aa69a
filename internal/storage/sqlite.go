package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"yt_relay/internal/model"
	"yt_relay/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Health labels derived from subscription expiry, consumed by dashboards.
const (
	HealthUnknown  = "unknown"
	HealthExpired  = "expired"
	HealthExpiring = "expiring_soon"
	HealthOK       = "ok"
)

// expiringSoonWindow matches the dashboard's "expiring_soon" threshold.
const expiringSoonWindow = 48 * time.Hour

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertVideo inserts a video record, ignoring conflicts on video_id.
// Returns true if a new row was written.
func (s *SQLite) InsertVideo(ctx context.Context, v *model.Video) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO videos (video_id, channel_id, title, published_at, received_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.VideoID, v.ChannelID, v.Title, fmtTime(v.PublishedAt), fmtTime(v.ReceivedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// VideoExists checks for an existing record with the given video ID.
func (s *SQLite) VideoExists(ctx context.Context, videoID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE video_id = ?`, videoID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check video: %w", err)
	}
	return count > 0, nil
}

// PruneVideosBefore deletes video records received before cutoff.
func (s *SQLite) PruneVideosBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM videos WHERE received_at < ?`, fmtTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune videos: %w", err)
	}
	return res.RowsAffected()
}

// UpsertSubscriptionActive records a successful hub handshake: active status,
// fresh lease, attempts and error cleared.
func (s *SQLite) UpsertSubscriptionActive(ctx context.Context, channelID, topic string, expiresAt time.Time) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (channel_id, topic, status, expires_at, last_renewed_at, renewal_attempts, error_message, created_at)
		 VALUES (?, ?, 'active', ?, ?, 0, NULL, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   topic = excluded.topic,
		   status = 'active',
		   expires_at = excluded.expires_at,
		   last_renewed_at = excluded.last_renewed_at,
		   renewal_attempts = 0,
		   error_message = NULL`,
		channelID, topic, fmtTime(expiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription active: %w", err)
	}
	return nil
}

// UpsertSubscriptionFailed records an exhausted handshake: failed status,
// captured error, attempt counter incremented. The lease fields are left
// untouched so a still-valid lease remains visible.
func (s *SQLite) UpsertSubscriptionFailed(ctx context.Context, channelID, topic, errMsg string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (channel_id, topic, status, renewal_attempts, error_message, created_at)
		 VALUES (?, ?, 'failed', 1, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   status = 'failed',
		   error_message = excluded.error_message,
		   renewal_attempts = subscriptions.renewal_attempts + 1`,
		channelID, topic, errMsg, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription failed: %w", err)
	}
	return nil
}

// GetSubscription returns the subscription for a channel, or nil if none exists.
func (s *SQLite) GetSubscription(ctx context.Context, channelID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_id, topic, status, expires_at, last_renewed_at, renewal_attempts, error_message, created_at
		 FROM subscriptions WHERE channel_id = ?`, channelID,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// ListSubscriptions returns all subscriptions ordered by channel.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, topic, status, expires_at, last_renewed_at, renewal_attempts, error_message, created_at
		 FROM subscriptions ORDER BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListExpiringSubscriptions returns subscriptions whose lease ends before the
// given instant, plus rows with no recorded lease (failed or never verified).
func (s *SQLite) ListExpiringSubscriptions(ctx context.Context, before time.Time) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, topic, status, expires_at, last_renewed_at, renewal_attempts, error_message, created_at
		 FROM subscriptions
		 WHERE expires_at IS NULL OR expires_at <= ?
		 ORDER BY channel_id`,
		fmtTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("query expiring subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// CreateAccount inserts a new account and populates its ID and CreatedAt.
func (s *SQLite) CreateAccount(ctx context.Context, a *model.Account) error {
	now := fmtTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, created_at) VALUES (?, ?)`,
		a.Name, now,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetAccount returns a single account by its ID, or nil if none exists.
func (s *SQLite) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	return &a, nil
}

// ListAccounts returns all accounts ordered by name.
func (s *SQLite) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM accounts ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var created string
		if err := rows.Scan(&a.ID, &a.Name, &created); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt, _ = time.Parse(timeLayout, created)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account with its feeds and targets.
func (s *SQLite) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM targets WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("delete targets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("delete feeds: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return tx.Commit()
}

// AddFeed attaches a channel to an account; re-adding is a no-op.
func (s *SQLite) AddFeed(ctx context.Context, accountID int64, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feeds (account_id, channel_id) VALUES (?, ?)`,
		accountID, channelID,
	)
	if err != nil {
		return fmt.Errorf("add feed: %w", err)
	}
	return nil
}

// RemoveFeed detaches a channel from an account.
func (s *SQLite) RemoveFeed(ctx context.Context, accountID int64, channelID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feeds WHERE account_id = ? AND channel_id = ?`,
		accountID, channelID,
	)
	if err != nil {
		return fmt.Errorf("remove feed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListFeeds returns the channel IDs watched by an account.
func (s *SQLite) ListFeeds(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id FROM feeds WHERE account_id = ? ORDER BY id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// FeedHealth reports per-feed subscription health for an account.
func (s *SQLite) FeedHealth(ctx context.Context, accountID int64, now time.Time) ([]model.SubscriptionHealth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.channel_id, s.status, s.expires_at, s.last_renewed_at, s.error_message
		 FROM feeds f
		 LEFT JOIN subscriptions s ON s.channel_id = f.channel_id
		 WHERE f.account_id = ?
		 ORDER BY f.id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query feed health: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.SubscriptionHealth
	for rows.Next() {
		var h model.SubscriptionHealth
		var status, expires, renewed, errMsg sql.NullString
		if err := rows.Scan(&h.ChannelID, &status, &expires, &renewed, &errMsg); err != nil {
			return nil, fmt.Errorf("scan feed health: %w", err)
		}
		h.Status = model.SubscriptionStatus(status.String)
		h.ExpiresAt = parseOptTime(expires)
		h.LastRenewedAt = parseOptTime(renewed)
		h.ErrorMessage = errMsg.String

		switch {
		case h.ExpiresAt == nil:
			h.Health = HealthUnknown
		case h.ExpiresAt.Before(now):
			h.Health = HealthExpired
			h.HoursUntilExpiry = h.ExpiresAt.Sub(now).Hours()
		case h.ExpiresAt.Before(now.Add(expiringSoonWindow)):
			h.Health = HealthExpiring
			h.HoursUntilExpiry = h.ExpiresAt.Sub(now).Hours()
		default:
			h.Health = HealthOK
			h.HoursUntilExpiry = h.ExpiresAt.Sub(now).Hours()
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// AddTarget attaches a Telegram chat to an account; re-adding is a no-op.
func (s *SQLite) AddTarget(ctx context.Context, accountID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO targets (account_id, chat_id) VALUES (?, ?)`,
		accountID, chatID,
	)
	if err != nil {
		return fmt.Errorf("add target: %w", err)
	}
	return nil
}

// RemoveTarget detaches a Telegram chat from an account.
func (s *SQLite) RemoveTarget(ctx context.Context, accountID, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM targets WHERE account_id = ? AND chat_id = ?`,
		accountID, chatID,
	)
	if err != nil {
		return fmt.Errorf("remove target: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTargets returns the Telegram chat IDs of an account.
func (s *SQLite) ListTargets(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM targets WHERE account_id = ? ORDER BY chat_id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AccountsWatching returns every account that watches the given channel,
// together with its notification targets.
func (s *SQLite) AccountsWatching(ctx context.Context, channelID string) ([]model.AccountTargets, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, t.chat_id
		 FROM accounts a
		 JOIN feeds f ON f.account_id = a.id
		 LEFT JOIN targets t ON t.account_id = a.id
		 WHERE f.channel_id = ?
		 ORDER BY a.id, t.chat_id`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watchers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.AccountTargets
	for rows.Next() {
		var id int64
		var name string
		var chat sql.NullInt64
		if err := rows.Scan(&id, &name, &chat); err != nil {
			return nil, fmt.Errorf("scan watcher: %w", err)
		}
		if len(result) == 0 || result[len(result)-1].AccountID != id {
			result = append(result, model.AccountTargets{AccountID: id, Name: name})
		}
		if chat.Valid {
			last := &result[len(result)-1]
			last.ChatIDs = append(last.ChatIDs, chat.Int64)
		}
	}
	return result, rows.Err()
}

// IgnoreChannel marks a channel as excluded from suggestions.
func (s *SQLite) IgnoreChannel(ctx context.Context, channelID, reason string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ignored_channels (channel_id, reason, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET reason = excluded.reason, created_at = excluded.created_at`,
		channelID, reason, now,
	)
	if err != nil {
		return fmt.Errorf("ignore channel: %w", err)
	}
	return nil
}

// IsChannelIgnored checks whether a channel is on the ignore list.
func (s *SQLite) IsChannelIgnored(ctx context.Context, channelID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ignored_channels WHERE channel_id = ?`, channelID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check ignored: %w", err)
	}
	return count > 0, nil
}

// EnqueueJob inserts a pending job, ignoring conflicts on the job key.
// Returns true if a new job was created.
func (s *SQLite) EnqueueJob(ctx context.Context, j *model.Job) (bool, error) {
	now := time.Now().UTC()
	var published *string
	if j.PublishedAt != nil {
		v := fmtTime(*j.PublishedAt)
		published = &v
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs
		   (job_key, video_id, channel_id, title, published_at, received_at, status, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		j.Key, j.VideoID, j.ChannelID, j.Title, published, fmtTime(j.ReceivedAt), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("last insert id: %w", err)
		}
		j.ID = id
	}
	return n > 0, nil
}

// ClaimJob atomically picks one runnable job: a pending job that is due, or
// an active job whose lock expired (stall recovery, counted per reclaim). A
// job already reclaimed maxStalled times is never handed out again; it stays
// put until FailStalledJobs parks it. Returns nil when no job is runnable.
func (s *SQLite) ClaimJob(ctx context.Context, workerID string, now, lockCutoff time.Time, maxStalled int) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs SET
		   status = 'active',
		   locked_at = ?,
		   locked_by = ?,
		   stalled_count = CASE WHEN status = 'active' THEN stalled_count + 1 ELSE stalled_count END
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE (status = 'pending' AND next_attempt_at <= ?)
		      OR (status = 'active' AND locked_at <= ? AND stalled_count < ?)
		   ORDER BY id
		   LIMIT 1
		 )
		 RETURNING id, job_key, video_id, channel_id, title, published_at, received_at,
		           status, attempts, stalled_count, next_attempt_at, locked_at, locked_by,
		           last_error, created_at, failed_at`,
		fmtTime(now), workerID, fmtTime(now), fmtTime(lockCutoff), maxStalled,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// RenewJobLock extends the lock of a running job. The worker check keeps a
// stalled worker from resurrecting a job that was already reclaimed.
func (s *SQLite) RenewJobLock(ctx context.Context, id int64, workerID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET locked_at = ? WHERE id = ? AND locked_by = ? AND status = 'active'`,
		fmtTime(now), id, workerID,
	)
	if err != nil {
		return fmt.Errorf("renew job lock: %w", err)
	}
	return nil
}

// CompleteJob removes a successfully processed job.
func (s *SQLite) CompleteJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// RetryJob returns a failed attempt to the pending state with a new due time.
func (s *SQLite) RetryJob(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', attempts = attempts + 1, next_attempt_at = ?,
		   locked_at = NULL, locked_by = '', last_error = ?
		 WHERE id = ?`,
		fmtTime(nextAttemptAt), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return nil
}

// FailJob parks a job permanently; failed jobs are retained for inspection.
func (s *SQLite) FailJob(ctx context.Context, id int64, lastError string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', attempts = attempts + 1, last_error = ?,
		   locked_at = NULL, locked_by = '', failed_at = ?
		 WHERE id = ?`,
		lastError, fmtTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// FailStalledJobs parks active jobs whose lock expired and which were already
// reclaimed maxStalled times.
func (s *SQLite) FailStalledJobs(ctx context.Context, lockCutoff time.Time, maxStalled int, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', last_error = 'job stalled', locked_at = NULL, locked_by = '', failed_at = ?
		 WHERE status = 'active' AND locked_at <= ? AND stalled_count >= ?`,
		fmtTime(now), fmtTime(lockCutoff), maxStalled,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stalled jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeFailedJobsBefore deletes failed jobs that failed before cutoff.
func (s *SQLite) PurgeFailedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'failed' AND failed_at < ?`, fmtTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetJob returns the job with the given key, or nil if none exists.
func (s *SQLite) GetJob(ctx context.Context, key string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_key, video_id, channel_id, title, published_at, received_at,
		        status, attempts, stalled_count, next_attempt_at, locked_at, locked_by,
		        last_error, created_at, failed_at
		 FROM jobs WHERE job_key = ?`, key,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseOptTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var status, created string
	var expires, renewed, errMsg sql.NullString
	err := row.Scan(&sub.ChannelID, &sub.Topic, &status, &expires, &renewed,
		&sub.RenewalAttempts, &errMsg, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Status = model.SubscriptionStatus(status)
	sub.ExpiresAt = parseOptTime(expires)
	sub.LastRenewedAt = parseOptTime(renewed)
	sub.ErrorMessage = errMsg.String
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var status, received, nextAttempt, created string
	var published, locked, failed sql.NullString
	err := row.Scan(&j.ID, &j.Key, &j.VideoID, &j.ChannelID, &j.Title, &published, &received,
		&status, &j.Attempts, &j.StalledCount, &nextAttempt, &locked, &j.LockedBy,
		&j.LastError, &created, &failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Status = model.JobStatus(status)
	j.PublishedAt = parseOptTime(published)
	j.ReceivedAt, _ = time.Parse(timeLayout, received)
	j.NextAttemptAt, _ = time.Parse(timeLayout, nextAttempt)
	j.LockedAt = parseOptTime(locked)
	j.CreatedAt, _ = time.Parse(timeLayout, created)
	j.FailedAt = parseOptTime(failed)
	return &j, nil
}
