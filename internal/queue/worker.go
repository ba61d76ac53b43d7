package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
)

// errSkip marks benign skips (post deleted, duplicate delivery) so the task
// is acked without noise.
var errSkip = errors.New("skip")

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	ac := publisher.AttemptContext{
		Attempt:     retryCount + 1,
		MaxAttempts: maxRetry + 1,
	}

	err := q.ProcessPost(ctx, payload, ac)
	if errors.Is(err, errSkip) {
		return nil
	}
	return err
}

// ProcessPost drives one delivery of a publish job through the post state
// machine. Returning a plain error makes asynq re-deliver with backoff;
// wrapping asynq.SkipRetry makes the outcome terminal. Either way the post
// row already carries the resulting status before this returns.
func (q *Queue) ProcessPost(ctx context.Context, payload PublishPostPayload, ac publisher.AttemptContext) error {
	log := slog.With(slog.Int64("post_id", payload.PostID), slog.Int("attempt", ac.Attempt))

	post, err := q.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		// Post was deleted after scheduling; nothing to do.
		log.Info("post no longer exists, skipping")
		return errSkip
	}

	// A post stuck in publishing means a previous worker died mid-attempt.
	// Reset and carry on with this delivery instead of erroring.
	if post.Status == models.PostStatusPublishing {
		log.Warn("post found mid-publish, recovering")
		if err := q.pr.MarkScheduled(ctx, post.ID, post.ErrorMessage); err != nil {
			return err
		}
		post.Status = models.PostStatusScheduled
	}

	// Duplicate delivery of an already published post is a no-op success.
	if post.PublishedAt != nil {
		log.Info("post already published, skipping duplicate delivery")
		return errSkip
	}

	if post.Status != models.PostStatusScheduled {
		log.Info("post not in a publishable state, skipping",
			slog.String("status", post.Status))
		return errSkip
	}

	if err := q.pr.SetStatus(ctx, models.PostStatusPublishing, post.ID); err != nil {
		return err
	}
	log.Info("post publishing", slog.String("platform", string(post.Platform)))

	profile, err := q.pf.GetByID(ctx, post.ProfileID)
	if err != nil {
		return q.retryableFailure(ctx, post, ac, err)
	}
	if profile == nil {
		return q.terminalFailure(ctx, post, ac, "profile no longer exists")
	}
	if !profile.IsActive {
		return q.terminalFailure(ctx, post, ac, "profile is inactive; reconnect the account")
	}

	usable, err := q.tokens.EnsureValid(ctx, profile.ID)
	if err != nil {
		return q.retryableFailure(ctx, post, ac, err)
	}
	if !usable {
		return q.retryableFailure(ctx, post, ac, errors.New("credential not usable for publish"))
	}

	mediaURLs, err := q.pm.ListURLsByPostID(ctx, post.ID)
	if err != nil {
		return q.retryableFailure(ctx, post, ac, err)
	}

	// Reload: EnsureValid may have refreshed the stored token.
	profile, err = q.pf.GetByID(ctx, profile.ID)
	if err != nil || profile == nil {
		return q.retryableFailure(ctx, post, ac, fmt.Errorf("reload profile: %v", err))
	}

	result, err := q.dp.Dispatch(ctx, post, profile, mediaURLs)
	q.recordAttempt(ctx, post, ac, err)

	if err != nil {
		return q.resolveFailure(ctx, post, profile, ac, err)
	}

	metadata, merr := json.Marshal(result.Metadata)
	if merr != nil {
		metadata = nil
	}
	if err := q.pr.MarkPublished(ctx, post.ID, result.PlatformPostID, metadata); err != nil {
		return err
	}

	log.Info("post published",
		slog.String("platform", string(post.Platform)),
		slog.String("platform_post_id", result.PlatformPostID),
	)
	return nil
}

// resolveFailure turns a publish error into the post's next state. A token
// rejected by the platform gets one forced refresh; when that cannot recover
// the credential the failure is terminal regardless of remaining budget.
func (q *Queue) resolveFailure(ctx context.Context, post *models.Post, profile *models.Profile, ac publisher.AttemptContext, err error) error {
	if publisher.KindOf(err) == publisher.KindTokenExpired {
		if !q.tokens.HandleRejectedToken(ctx, profile.ID) {
			return q.terminalFailure(ctx, post, ac, err.Error())
		}
	}

	if publisher.Retryable(err, ac) {
		return q.retryableFailure(ctx, post, ac, err)
	}
	return q.terminalFailure(ctx, post, ac, err.Error())
}

// retryableFailure puts the post back into scheduled with the error noted and
// returns a plain error so the backing queue re-delivers with backoff.
func (q *Queue) retryableFailure(ctx context.Context, post *models.Post, ac publisher.AttemptContext, cause error) error {
	if ac.Attempt >= ac.MaxAttempts {
		return q.terminalFailure(ctx, post, ac, cause.Error())
	}

	slog.Warn("publish attempt failed, will retry",
		slog.Int64("post_id", post.ID),
		slog.Int("attempt", ac.Attempt),
		slog.Int("max_attempts", ac.MaxAttempts),
		slog.String("error", cause.Error()),
	)
	if err := q.pr.MarkScheduled(ctx, post.ID, cause.Error()); err != nil {
		slog.Info(err.Error())
	}
	return cause
}

// terminalFailure marks the post failed and stops re-delivery.
func (q *Queue) terminalFailure(ctx context.Context, post *models.Post, ac publisher.AttemptContext, message string) error {
	slog.Warn("post failed",
		slog.Int64("post_id", post.ID),
		slog.Int("attempt", ac.Attempt),
		slog.String("error", message),
	)
	if err := q.pr.MarkFailed(ctx, post.ID, message); err != nil {
		slog.Info(err.Error())
	}
	return fmt.Errorf("%s: %w", message, asynq.SkipRetry)
}

func (q *Queue) recordAttempt(ctx context.Context, post *models.Post, ac publisher.AttemptContext, attemptErr error) {
	history := models.PublishHistory{
		UserID:    post.UserID,
		PostID:    post.ID,
		ProfileID: post.ProfileID,
		Attempt:   ac.Attempt,
	}
	if attemptErr != nil {
		history.ErrorMessage = attemptErr.Error()
	}
	if _, err := q.ph.Create(ctx, &history); err != nil {
		slog.Info(err.Error())
	}
}
