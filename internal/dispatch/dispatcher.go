package dispatch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
)

// Dispatcher routes a post to its platform adapter and enforces the
// structural rules that hold regardless of transport: media presence on
// media-only networks, single-video limits, and a small randomized delay for
// reel/short formats so concurrent accounts pulling the same media URL don't
// race each other on the platform side.
type Dispatcher struct {
	registry map[models.Platform]publisher.Publisher

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func New(publishers ...publisher.Publisher) *Dispatcher {
	registry := make(map[models.Platform]publisher.Publisher, len(publishers))
	for _, p := range publishers {
		registry[p.Platform()] = p
	}
	return &Dispatcher{
		registry: registry,
		sleep:    time.Sleep,
	}
}

// PublisherFor exposes the registry so the token manager can reach each
// platform's refresh implementation.
func (d *Dispatcher) PublisherFor(p models.Platform) (publisher.Publisher, bool) {
	pub, ok := d.registry[p]
	return pub, ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, post *models.Post, profile *models.Profile, mediaURLs []string) (*publisher.Result, error) {
	pub, ok := d.registry[post.Platform]
	if !ok {
		return nil, publisher.NewStructuralError(post.Platform, publisher.KindUnknown, "no publisher registered for platform")
	}

	if post.Platform.RequiresMedia() && len(mediaURLs) == 0 {
		return nil, publisher.NewStructuralError(post.Platform, publisher.KindInvalidMedia, "platform requires at least one media item")
	}

	if post.Platform.SingleVideoOnly() && post.MediaKind == models.MediaKindVideo && len(mediaURLs) > 1 {
		slog.Warn("platform accepts a single video, using the first",
			slog.String("platform", string(post.Platform)),
			slog.Int64("post_id", post.ID),
			slog.Int("supplied", len(mediaURLs)),
		)
		mediaURLs = mediaURLs[:1]
	}

	if post.Format == models.FormatReel || post.Format == models.FormatShort {
		delay := time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
		d.sleep(delay)
	}

	content := publisher.Content{
		Caption:   post.Caption,
		Title:     post.Title,
		MediaURLs: mediaURLs,
		MediaKind: post.MediaKind,
		Format:    post.Format,
	}

	result, err := pub.Publish(ctx, profile, content)
	if err != nil {
		slog.Info("publish failed",
			slog.String("platform", string(post.Platform)),
			slog.Int64("post_id", post.ID),
			slog.String("kind", string(publisher.KindOf(err))),
		)
		return nil, err
	}

	slog.Info("publish succeeded",
		slog.String("platform", string(post.Platform)),
		slog.Int64("post_id", post.ID),
		slog.String("platform_post_id", result.PlatformPostID),
	)
	return result, nil
}
