package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
)

type fakePostRepo struct {
	posts map[int64]*models.Post
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	m := make(map[int64]*models.Post)
	for _, p := range posts {
		m[p.ID] = p
	}
	return &fakePostRepo{posts: m}
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.posts[post.ID] = post
	return post.ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	_, ok := r.posts[postID]
	return ok, nil
}

func (r *fakePostRepo) SetStatus(ctx context.Context, status string, postID int64) error {
	r.posts[postID].Status = status
	return nil
}

func (r *fakePostRepo) MarkScheduled(ctx context.Context, postID int64, note string) error {
	p := r.posts[postID]
	p.Status = models.PostStatusScheduled
	p.ErrorMessage = note
	p.FailedAt = nil
	return nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, postID int64, platformPostID string, metadata json.RawMessage) error {
	p := r.posts[postID]
	now := time.Now()
	p.Status = models.PostStatusPublished
	p.PublishedAt = &now
	p.PlatformPostID = platformPostID
	p.Metadata = metadata
	p.ErrorMessage = ""
	p.FailedAt = nil
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64, errMsg string) error {
	p := r.posts[postID]
	now := time.Now()
	p.Status = models.PostStatusFailed
	p.FailedAt = &now
	p.ErrorMessage = errMsg
	return nil
}

func (r *fakePostRepo) RevertToDraft(ctx context.Context, postID int64, note string) error {
	p := r.posts[postID]
	p.Status = models.PostStatusDraft
	p.ErrorMessage = note
	return nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	delete(r.posts, id)
	return nil
}

type fakeProfileRepo struct {
	profiles map[int64]*models.Profile
}

func newFakeProfileRepo(profiles ...*models.Profile) *fakeProfileRepo {
	m := make(map[int64]*models.Profile)
	for _, p := range profiles {
		m[p.ID] = p
	}
	return &fakeProfileRepo{profiles: m}
}

func (r *fakeProfileRepo) Create(ctx context.Context, tx *sql.Tx, p *models.Profile) (int64, error) {
	r.profiles[p.ID] = p
	return p.ID, nil
}

func (r *fakeProfileRepo) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Profile, error) {
	return nil, nil
}

func (r *fakeProfileRepo) ListActiveExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Profile, error) {
	return nil, nil
}

func (r *fakeProfileRepo) CheckByUserID(ctx context.Context, profileID, userID int64) (bool, error) {
	_, ok := r.profiles[profileID]
	return ok, nil
}

func (r *fakeProfileRepo) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	p := r.profiles[id]
	p.AccessToken = accessToken
	if refreshToken != "" {
		p.RefreshToken = refreshToken
	}
	p.TokenExpiresAt = expiresAt
	return nil
}

func (r *fakeProfileRepo) Deactivate(ctx context.Context, id int64, reason string) error {
	p := r.profiles[id]
	p.IsActive = false
	p.DeactivationReason = reason
	return nil
}

func (r *fakeProfileRepo) Remove(ctx context.Context, id int64) error {
	delete(r.profiles, id)
	return nil
}

type fakePostMediaRepo struct {
	urls map[int64][]string
}

func (r *fakePostMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	return nil
}

func (r *fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return nil, nil
}

func (r *fakePostMediaRepo) ListURLsByPostID(ctx context.Context, postID int64) ([]string, error) {
	return r.urls[postID], nil
}

func (r *fakePostMediaRepo) RemoveByPostID(ctx context.Context, postID int64) error {
	delete(r.urls, postID)
	return nil
}

type fakeHistoryRepo struct {
	rows []*models.PublishHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, h *models.PublishHistory) (int64, error) {
	r.rows = append(r.rows, h)
	return int64(len(r.rows)), nil
}

func (r *fakeHistoryRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishHistory, error) {
	return r.rows, nil
}

type fakeTokens struct {
	usable     bool
	err        error
	recovered  bool
	ensured    int
	rejections int
}

func (t *fakeTokens) EnsureValid(ctx context.Context, profileID int64) (bool, error) {
	t.ensured++
	return t.usable, t.err
}

func (t *fakeTokens) HandleRejectedToken(ctx context.Context, profileID int64) bool {
	t.rejections++
	return t.recovered
}

type fakeDispatcher struct {
	results []error
	calls   int
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, post *models.Post, profile *models.Profile, mediaURLs []string) (*publisher.Result, error) {
	i := d.calls
	d.calls++
	if i < len(d.results) && d.results[i] != nil {
		return nil, d.results[i]
	}
	return &publisher.Result{PlatformPostID: "remote-42", Metadata: map[string]string{"permalink": "https://example.com/p/42"}}, nil
}

type workerFixture struct {
	q       *Queue
	posts   *fakePostRepo
	history *fakeHistoryRepo
	tokens  *fakeTokens
	dp      *fakeDispatcher
}

func newWorkerFixture(post *models.Post, profile *models.Profile, dispatchResults ...error) *workerFixture {
	posts := newFakePostRepo()
	if post != nil {
		posts.posts[post.ID] = post
	}
	profiles := newFakeProfileRepo()
	if profile != nil {
		profiles.profiles[profile.ID] = profile
	}
	history := &fakeHistoryRepo{}
	tokens := &fakeTokens{usable: true}
	dp := &fakeDispatcher{results: dispatchResults}

	cfg := config.Queue{
		Concurrency:    1,
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		EnqueueTimeout: time.Second,
	}
	q := NewQueue(nil, nil, cfg, posts, profiles, &fakePostMediaRepo{}, history, tokens, dp)

	return &workerFixture{q: q, posts: posts, history: history, tokens: tokens, dp: dp}
}

func scheduledPost() *models.Post {
	return &models.Post{
		ID:        1,
		UserID:    7,
		ProfileID: 11,
		Platform:  models.PlatformTwitter,
		Caption:   "hello",
		Status:    models.PostStatusScheduled,
	}
}

func activeProfile() *models.Profile {
	return &models.Profile{
		ID:       11,
		UserID:   7,
		Platform: models.PlatformTwitter,
		IsActive: true,
	}
}

func attempt(n, max int) publisher.AttemptContext {
	return publisher.AttemptContext{Attempt: n, MaxAttempts: max}
}

func TestProcessPostPublishes(t *testing.T) {
	f := newWorkerFixture(scheduledPost(), activeProfile())

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1, UserID: 7}, attempt(1, 3))
	require.NoError(t, err)

	p := f.posts.posts[1]
	assert.Equal(t, models.PostStatusPublished, p.Status)
	assert.NotNil(t, p.PublishedAt)
	assert.Equal(t, "remote-42", p.PlatformPostID)
	assert.Equal(t, 1, f.dp.calls)

	require.Len(t, f.history.rows, 1)
	assert.Equal(t, 1, f.history.rows[0].Attempt)
	assert.Empty(t, f.history.rows[0].ErrorMessage)
}

func TestProcessPostMissingPost(t *testing.T) {
	f := newWorkerFixture(nil, activeProfile())

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 999}, attempt(1, 3))
	assert.ErrorIs(t, err, errSkip)
	assert.Equal(t, 0, f.dp.calls)
}

func TestProcessPostDuplicateDelivery(t *testing.T) {
	post := scheduledPost()
	now := time.Now()
	post.Status = models.PostStatusPublished
	post.PublishedAt = &now
	post.PlatformPostID = "remote-1"
	f := newWorkerFixture(post, activeProfile())

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(2, 3))
	assert.ErrorIs(t, err, errSkip)
	assert.Equal(t, 0, f.dp.calls)
	assert.Equal(t, "remote-1", f.posts.posts[1].PlatformPostID)
}

func TestProcessPostSkipsDraft(t *testing.T) {
	post := scheduledPost()
	post.Status = models.PostStatusDraft
	f := newWorkerFixture(post, activeProfile())

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, errSkip)
	assert.Equal(t, 0, f.dp.calls)
	assert.Equal(t, models.PostStatusDraft, f.posts.posts[1].Status)
}

func TestProcessPostRecoversMidPublish(t *testing.T) {
	post := scheduledPost()
	post.Status = models.PostStatusPublishing
	f := newWorkerFixture(post, activeProfile())

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(2, 3))
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, f.posts.posts[1].Status)
	assert.Equal(t, 1, f.dp.calls)
}

func TestProcessPostInactiveProfile(t *testing.T) {
	profile := activeProfile()
	profile.IsActive = false
	f := newWorkerFixture(scheduledPost(), profile)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
	assert.Equal(t, 0, f.dp.calls)
}

func TestProcessPostMissingProfile(t *testing.T) {
	f := newWorkerFixture(scheduledPost(), nil)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
}

func TestProcessPostUnusableCredentialRetries(t *testing.T) {
	f := newWorkerFixture(scheduledPost(), activeProfile())
	f.tokens.usable = false

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, models.PostStatusScheduled, f.posts.posts[1].Status)
	assert.Equal(t, 0, f.dp.calls)
}

func TestProcessPostRetryableFailure(t *testing.T) {
	rateLimited := publisher.NewError(models.PlatformTwitter, publisher.KindRateLimited, "429", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), rateLimited)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	p := f.posts.posts[1]
	assert.Equal(t, models.PostStatusScheduled, p.Status)
	assert.NotEmpty(t, p.ErrorMessage)

	require.Len(t, f.history.rows, 1)
	assert.NotEmpty(t, f.history.rows[0].ErrorMessage)
}

func TestProcessPostBudgetExhausted(t *testing.T) {
	rateLimited := publisher.NewError(models.PlatformTwitter, publisher.KindRateLimited, "429", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), rateLimited)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(3, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	p := f.posts.posts[1]
	assert.Equal(t, models.PostStatusFailed, p.Status)
	assert.NotNil(t, p.FailedAt)
	assert.Contains(t, p.ErrorMessage, "429")
}

func TestProcessPostSpamShortCircuits(t *testing.T) {
	spam := publisher.NewError(models.PlatformTwitter, publisher.KindSpamOrQuotaRisk, "duplicate content", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), spam)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
	assert.Equal(t, 1, f.dp.calls)
}

func TestProcessPostStructuralRejectionFails(t *testing.T) {
	structural := publisher.NewStructuralError(models.PlatformInstagram, publisher.KindInvalidMedia, "platform requires at least one media item")
	f := newWorkerFixture(scheduledPost(), activeProfile(), structural)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	p := f.posts.posts[1]
	assert.Equal(t, models.PostStatusFailed, p.Status)
	assert.Contains(t, p.ErrorMessage, "media")
}

func TestProcessPostTokenRejectedAndRecovered(t *testing.T) {
	expired := publisher.NewError(models.PlatformTwitter, publisher.KindTokenExpired, "401", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), expired)
	f.tokens.recovered = true

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, f.tokens.rejections)
	assert.Equal(t, models.PostStatusScheduled, f.posts.posts[1].Status)
}

func TestProcessPostTokenRejectedUnrecoverable(t *testing.T) {
	expired := publisher.NewError(models.PlatformTwitter, publisher.KindTokenExpired, "401", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), expired)
	f.tokens.recovered = false

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, f.tokens.rejections)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
}

func TestProcessPostRateLimitedTwiceThenPublishes(t *testing.T) {
	rateLimited := publisher.NewError(models.PlatformTwitter, publisher.KindRateLimited, "429", nil)
	f := newWorkerFixture(scheduledPost(), activeProfile(), rateLimited, rateLimited, nil)

	err := f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(1, 3))
	require.Error(t, err)
	assert.Equal(t, models.PostStatusScheduled, f.posts.posts[1].Status)

	err = f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(2, 3))
	require.Error(t, err)
	assert.Equal(t, models.PostStatusScheduled, f.posts.posts[1].Status)

	err = f.q.ProcessPost(context.Background(), PublishPostPayload{PostID: 1}, attempt(3, 3))
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPublished, f.posts.posts[1].Status)
	assert.Equal(t, 3, f.dp.calls)
	assert.Len(t, f.history.rows, 3)
}

func TestHandlePublishPostTaskBadPayload(t *testing.T) {
	f := newWorkerFixture(nil, nil)

	task := asynq.NewTask(TaskTypePublishPost, []byte("not json"))
	err := f.q.HandlePublishPostTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePublishPostTaskAcksSkips(t *testing.T) {
	f := newWorkerFixture(nil, nil)

	task := asynq.NewTask(TaskTypePublishPost, []byte(`{"post_id": 404, "user_id": 1}`))
	err := f.q.HandlePublishPostTask(context.Background(), task)
	assert.NoError(t, err)
}
