package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
)

type recordingPublisher struct {
	platform models.Platform
	calls    int
	content  publisher.Content
	err      error
}

func (p *recordingPublisher) Platform() models.Platform {
	return p.platform
}

func (p *recordingPublisher) Publish(ctx context.Context, profile *models.Profile, content publisher.Content) (*publisher.Result, error) {
	p.calls++
	p.content = content
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.Result{PlatformPostID: "out-1"}, nil
}

func (p *recordingPublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*publisher.Credential, error) {
	return &publisher.Credential{}, nil
}

func testPost(platform models.Platform) *models.Post {
	return &models.Post{
		ID:        1,
		UserID:    7,
		ProfileID: 11,
		Platform:  platform,
		Caption:   "hello",
		MediaKind: models.MediaKindImage,
		Format:    models.FormatStandard,
	}
}

func TestDispatchRoutesToPlatformPublisher(t *testing.T) {
	pub := &recordingPublisher{platform: models.PlatformTwitter}
	d := New(pub)

	result, err := d.Dispatch(context.Background(), testPost(models.PlatformTwitter), &models.Profile{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "out-1", result.PlatformPostID)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "hello", pub.content.Caption)
}

func TestDispatchUnregisteredPlatform(t *testing.T) {
	d := New()

	_, err := d.Dispatch(context.Background(), testPost(models.PlatformTwitter), &models.Profile{}, nil)
	require.Error(t, err)
	assert.True(t, publisher.IsStructural(err))
}

func TestDispatchRejectsTextOnlyOnMediaPlatform(t *testing.T) {
	pub := &recordingPublisher{platform: models.PlatformInstagram}
	d := New(pub)

	_, err := d.Dispatch(context.Background(), testPost(models.PlatformInstagram), &models.Profile{}, nil)
	require.Error(t, err)
	assert.True(t, publisher.IsStructural(err))
	assert.Equal(t, publisher.KindInvalidMedia, publisher.KindOf(err))
	assert.Equal(t, 0, pub.calls)

	ac := publisher.AttemptContext{Attempt: 1, MaxAttempts: 3}
	assert.False(t, publisher.Retryable(err, ac))
}

func TestDispatchTruncatesExtraVideos(t *testing.T) {
	pub := &recordingPublisher{platform: models.PlatformTiktok}
	d := New(pub)

	post := testPost(models.PlatformTiktok)
	post.MediaKind = models.MediaKindVideo
	urls := []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"}

	_, err := d.Dispatch(context.Background(), post, &models.Profile{}, urls)
	require.NoError(t, err)
	require.Len(t, pub.content.MediaURLs, 1)
	assert.Equal(t, "https://cdn.example.com/a.mp4", pub.content.MediaURLs[0])
}

func TestDispatchDelaysReelFormats(t *testing.T) {
	pub := &recordingPublisher{platform: models.PlatformInstagram}
	d := New(pub)

	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept = dur }

	post := testPost(models.PlatformInstagram)
	post.MediaKind = models.MediaKindVideo
	post.Format = models.FormatReel

	_, err := d.Dispatch(context.Background(), post, &models.Profile{}, []string{"https://cdn.example.com/a.mp4"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, slept, time.Second)
	assert.Less(t, slept, 3*time.Second)
}

func TestDispatchNoDelayForStandardFormat(t *testing.T) {
	pub := &recordingPublisher{platform: models.PlatformTwitter}
	d := New(pub)

	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept = dur }

	_, err := d.Dispatch(context.Background(), testPost(models.PlatformTwitter), &models.Profile{}, nil)
	require.NoError(t, err)
	assert.Zero(t, slept)
}

func TestDispatchPropagatesPublisherError(t *testing.T) {
	pub := &recordingPublisher{
		platform: models.PlatformTwitter,
		err:      publisher.NewError(models.PlatformTwitter, publisher.KindRateLimited, "429", nil),
	}
	d := New(pub)

	_, err := d.Dispatch(context.Background(), testPost(models.PlatformTwitter), &models.Profile{}, nil)
	require.Error(t, err)
	assert.Equal(t, publisher.KindRateLimited, publisher.KindOf(err))
	assert.False(t, publisher.IsStructural(err))
}
