package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bachasia/schedy-sub001/internal/models"
)

func TestTaskID(t *testing.T) {
	assert.Equal(t, "post-1", TaskID(1))
	assert.Equal(t, "post-98765", TaskID(98765))
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(2 * time.Second)

	assert.Equal(t, 2*time.Second, delay(0, nil, nil))
	assert.Equal(t, 4*time.Second, delay(1, nil, nil))
	assert.Equal(t, 8*time.Second, delay(2, nil, nil))
	assert.Equal(t, 16*time.Second, delay(3, nil, nil))
}

func TestRetryRejectsNonFailedPost(t *testing.T) {
	post := scheduledPost()
	f := newWorkerFixture(post, activeProfile())

	_, err := f.q.Retry(context.Background(), post.ID, post.UserID)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Equal(t, models.PostStatusScheduled, f.posts.posts[post.ID].Status)
}

func TestRetryMissingPost(t *testing.T) {
	f := newWorkerFixture(nil, nil)

	_, err := f.q.Retry(context.Background(), 404, 7)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestQueueErrorKindOf(t *testing.T) {
	err := newQueueError("enqueue", KindBackendUnavailable, errors.New("dial tcp: refused"))
	assert.Equal(t, KindBackendUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "enqueue")

	assert.Equal(t, KindBackendUnavailable, KindOf(errors.New("plain")))
}
