package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
	"github.com/bachasia/schedy-sub001/internal/repository"
)

const TaskTypePublishPost = "publish:post"

const queueName = "default"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
	UserID int64 `json:"user_id"`
}

// TaskID derives the idempotency key enforcing at most one live job per post.
func TaskID(postID int64) string {
	return fmt.Sprintf("post-%d", postID)
}

// TokenManager is the slice of the token lifecycle manager the worker needs.
type TokenManager interface {
	EnsureValid(ctx context.Context, profileID int64) (bool, error)
	HandleRejectedToken(ctx context.Context, profileID int64) bool
}

// Dispatcher routes a post to its platform publisher.
type Dispatcher interface {
	Dispatch(ctx context.Context, post *models.Post, profile *models.Profile, mediaURLs []string) (*publisher.Result, error)
}

// Queue is the publishing queue service: delayed enqueue, cancel, manual
// retry, and the worker that drives each post through its state machine.
// Constructed once at process start with its collaborators injected.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       config.Queue

	pr     repository.PostRepository
	pf     repository.ProfileRepository
	pm     repository.PostMediaRepository
	ph     repository.PublishHistoryRepository
	tokens TokenManager
	dp     Dispatcher
}

func NewQueue(
	client *asynq.Client,
	inspector *asynq.Inspector,
	cfg config.Queue,
	pr repository.PostRepository,
	pf repository.ProfileRepository,
	pm repository.PostMediaRepository,
	ph repository.PublishHistoryRepository,
	tokens TokenManager,
	dp Dispatcher) *Queue {
	return &Queue{
		client:    client,
		inspector: inspector,
		cfg:       cfg,
		pr:        pr,
		pf:        pf,
		pm:        pm,
		ph:        ph,
		tokens:    tokens,
		dp:        dp,
	}
}
