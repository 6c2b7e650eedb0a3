package models

import (
	"time"
)

const (
	AccountStatusActive      = "active"
	AccountStatusNeedsReauth = "needs_reauth"
)

// SocialAccount is one connected provider identity. Unique per
// (user_id, platform, account_id); reconnecting the same identity
// overwrites the stored credential.
type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture_url" json:"profile_picture"`
	FollowerCount   int64     `db:"follower_count" json:"follower_count"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	SecondaryID     string    `db:"secondary_id" json:"-"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	AccountStatus   string    `db:"account_status" json:"account_status"`
	LastSyncedAt    time.Time `db:"last_synced_at" json:"last_synced_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
