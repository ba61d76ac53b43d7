package models

import (
	"encoding/json"
	"time"
)

type Post struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	ProfileID      int64           `db:"profile_id" json:"profile_id"`
	Platform       Platform        `db:"platform" json:"platform"`
	Caption        string          `db:"caption" json:"caption"`
	Title          string          `db:"title" json:"title"`
	MediaKind      string          `db:"media_kind" json:"media_kind"` // image, video, carousel
	Format         string          `db:"format" json:"format"`         // standard, reel, short, story
	ScheduledTime  *time.Time      `db:"scheduled_time" json:"scheduled_time"`
	Status         string          `db:"status" json:"status"`
	PublishedAt    *time.Time      `db:"published_at" json:"published_at"`
	FailedAt       *time.Time      `db:"failed_at" json:"failed_at"`
	ErrorMessage   string          `db:"error_message" json:"error_message"`
	PlatformPostID string          `db:"platform_post_id" json:"platform_post_id"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	MediaKindImage    = "image"
	MediaKindVideo    = "video"
	MediaKindCarousel = "carousel"
)

const (
	FormatStandard = "standard"
	FormatReel     = "reel"
	FormatShort    = "short"
	FormatStory    = "story"
)
