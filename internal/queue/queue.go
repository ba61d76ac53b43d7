package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bachasia/schedy-sub001/internal/models"
)

// Enqueue schedules a post for publishing at dueAt (nil or past means now).
// The call itself is bounded by the configured enqueue timeout so a degraded
// Redis fails fast instead of hanging the caller. On backend failure the post
// is reverted to draft with an error note, leaving it in a state the caller
// can retry from, and a BackendUnavailable error is returned.
func (q *Queue) Enqueue(ctx context.Context, postID, userID int64, dueAt *time.Time) (string, error) {
	payload, err := json.Marshal(PublishPostPayload{PostID: postID, UserID: userID})
	if err != nil {
		return "", newQueueError("enqueue", KindInvalidState, err)
	}

	var delay time.Duration
	if dueAt != nil {
		delay = time.Until(*dueAt)
		if delay < 0 {
			delay = 0
		}
	}

	task := asynq.NewTask(TaskTypePublishPost, payload)
	opts := []asynq.Option{
		asynq.TaskID(TaskID(postID)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(q.cfg.MaxAttempts - 1),
		asynq.Timeout(10 * time.Minute),
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, q.cfg.EnqueueTimeout)
	defer cancel()

	info, err := q.client.EnqueueContext(enqueueCtx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Re-adding the same post replaces the pending job instead of
		// duplicating it.
		if _, derr := q.Cancel(ctx, postID); derr != nil {
			return "", derr
		}
		info, err = q.client.EnqueueContext(enqueueCtx, task, opts...)
	}
	if err != nil {
		slog.Error("enqueue failed",
			slog.Int64("post_id", postID),
			slog.String("error", err.Error()),
		)
		note := fmt.Sprintf("scheduling failed: %v", err)
		if rerr := q.pr.RevertToDraft(ctx, postID, note); rerr != nil {
			slog.Info(rerr.Error())
		}
		return "", newQueueError("enqueue", KindBackendUnavailable, err)
	}

	slog.Info("post enqueued",
		slog.Int64("post_id", postID),
		slog.String("task_id", info.ID),
		slog.Duration("delay", delay),
	)
	return info.ID, nil
}

// Cancel removes a pending job for the post. It reports false without error
// when no pending job exists or the job is already running; a running job
// finishes and its terminal status write wins.
func (q *Queue) Cancel(ctx context.Context, postID int64) (bool, error) {
	err := q.inspector.DeleteTask(queueName, TaskID(postID))
	switch {
	case err == nil:
		slog.Info("pending job cancelled", slog.Int64("post_id", postID))
		return true, nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return false, nil
	default:
		// Deleting an active task is refused by asynq; that is the documented
		// let-it-finish behavior, not a backend outage.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, newQueueError("cancel", KindBackendUnavailable, err)
		}
		slog.Info(err.Error())
		return false, nil
	}
}

// Retry re-enqueues a failed post at its original schedule (or now when it
// had none), clearing the failure fields first. Only valid from the failed
// state.
func (q *Queue) Retry(ctx context.Context, postID, userID int64) (string, error) {
	post, err := q.pr.GetByID(ctx, postID)
	if err != nil {
		return "", newQueueError("retry", KindBackendUnavailable, err)
	}
	if post == nil {
		return "", newQueueError("retry", KindNotFound, nil)
	}
	if post.Status != models.PostStatusFailed {
		return "", newQueueError("retry", KindInvalidState,
			fmt.Errorf("post %d is %s, not failed", postID, post.Status))
	}

	if err := q.pr.MarkScheduled(ctx, postID, ""); err != nil {
		return "", newQueueError("retry", KindBackendUnavailable, err)
	}

	slog.Info("manual retry requested", slog.Int64("post_id", postID))
	return q.Enqueue(ctx, postID, userID, post.ScheduledTime)
}

// RetryDelay implements the exponential backoff between publish attempts:
// base * 2^n, so 2s, 4s, 8s, ... with the default base.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		return base * time.Duration(math.Pow(2, float64(n)))
	}
}
