package models

import (
	"encoding/json"
	"time"
)

// Profile is a connected social account and its stored credential. Tokens are
// AES-GCM encrypted at rest. A nil TokenExpiresAt means the token never
// expires (facebook page tokens). Refresh failures flip IsActive to false with
// a recorded reason; a profile row is never deleted by the token manager.
type Profile struct {
	ID                 int64           `db:"id" json:"id"`
	UserID             int64           `db:"user_id" json:"user_id"`
	Platform           Platform        `db:"platform" json:"platform"`
	AccountID          string          `db:"account_id" json:"account_id"`
	AccountName        string          `db:"account_name" json:"account_name"`
	AccountUsername    string          `db:"account_username" json:"account_username"`
	ProfilePicture     string          `db:"profile_picture_url" json:"profile_picture"`
	AccessToken        string          `db:"access_token" json:"-"`
	RefreshToken       string          `db:"refresh_token" json:"-"`
	TokenExpiresAt     *time.Time      `db:"token_expires_at" json:"token_expires_at"`
	IsActive           bool            `db:"is_active" json:"is_active"`
	DeactivationReason string          `db:"deactivation_reason" json:"deactivation_reason"`
	Metadata           json.RawMessage `db:"metadata" json:"metadata"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token is already past its expiry.
func (p *Profile) TokenExpired(now time.Time) bool {
	return p.TokenExpiresAt != nil && !p.TokenExpiresAt.After(now)
}

// TokenExpiresWithin reports whether the token expires inside the lookahead
// window but has not expired yet.
func (p *Profile) TokenExpiresWithin(now time.Time, window time.Duration) bool {
	return p.TokenExpiresAt != nil && p.TokenExpiresAt.After(now) && p.TokenExpiresAt.Before(now.Add(window))
}
