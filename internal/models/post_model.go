package models

import "time"

// Post is a scheduled publish request. Immediate publishes are never
// persisted; only posts waiting on their scheduled time reach this table.
type Post struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Caption       string    `db:"caption" json:"caption"`
	Title         string    `db:"title" json:"title"`
	Platforms     []string  `db:"platforms" json:"platforms"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	Status        string    `db:"status" json:"status"`
	LastError     string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// PostMedia joins a staged media item to a scheduled post, preserving order.
type PostMedia struct {
	PostID       int64     `db:"post_id"`
	Item         MediaItem `db:"-"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusScheduled = "scheduled"
	PostStatusPosted    = "posted"
	PostStatusPartial   = "partial"
	PostStatusFailed    = "failed"
)
