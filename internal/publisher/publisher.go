package publisher

import (
	"context"
	"net/http"
	"time"

	"github.com/bachasia/schedy-sub001/internal/models"
)

// Content is the platform-independent payload handed to an adapter. Media
// URLs are already ordered; adapters pick what their network supports.
type Content struct {
	Caption   string
	Title     string
	MediaURLs []string
	MediaKind string
	Format    string
}

// Result is what a successful publish yields: the platform-native post id and
// any platform-specific facts worth keeping (shortcode, publish id, ...).
type Result struct {
	PlatformPostID string
	Metadata       map[string]string
}

// Credential is a refreshed token set. Token fields are encrypted with the
// process secret, ready to persist. An empty RefreshToken keeps the previous
// one (not every network rotates it). A nil ExpiresAt means non-expiring.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Publisher is the per-network adapter contract. Publish performs the actual
// network call and maps every platform failure into a *publisher.Error with
// exactly one ErrorKind. RefreshToken implements the network's own refresh
// semantics (long-lived exchange, rotating refresh token, ...).
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error)
	RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error)
}

// httpClient bounds every adapter call. Video uploads poll separately with
// their own caps, so a single request never needs longer than this.
var httpClient = &http.Client{Timeout: 60 * time.Second}

func expiryFromSeconds(seconds int64) *time.Time {
	t := time.Now().Add(time.Duration(seconds) * time.Second)
	return &t
}
