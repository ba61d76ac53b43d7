package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/queue"
	"github.com/bachasia/schedy-sub001/internal/repository"
	"github.com/bachasia/schedy-sub001/internal/transfer"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, req *transfer.PostCreation) (*transfer.PostCreationResult, error)
	PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostDetail, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
	Retry(ctx context.Context, userID, postID int64) error
	CancelSchedule(ctx context.Context, userID, postID int64) (bool, error)
	Attempts(ctx context.Context, userID, postID int64) ([]*models.PublishHistory, error)
}

type postService struct {
	pr       repository.PostRepository
	pf       repository.ProfileRepository
	pm       repository.PostMediaRepository
	ph       repository.PublishHistoryRepository
	q        *queue.Queue
	validate *validator.Validate
}

func NewPostService(
	pr repository.PostRepository,
	pf repository.ProfileRepository,
	pm repository.PostMediaRepository,
	ph repository.PublishHistoryRepository,
	q *queue.Queue) PostService {
	return &postService{
		pr:       pr,
		pf:       pf,
		pm:       pm,
		ph:       ph,
		q:        q,
		validate: validator.New(),
	}
}

// CreatePost creates one post row per selected profile and enqueues each.
// Profiles are independent: one network failing to schedule never rolls back
// another's post, so the result carries per-profile errors alongside the ids
// that did go through.
func (s *postService) CreatePost(ctx context.Context, userID int64, req *transfer.PostCreation) (*transfer.PostCreationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	var scheduledTime *time.Time
	if req.ScheduledTime != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled_time: %w", err)
		}
		scheduledTime = &t
	}

	mediaKind := req.MediaKind
	if mediaKind == "" {
		mediaKind = models.MediaKindImage
	}
	format := req.Format
	if format == "" {
		format = models.FormatStandard
	}

	result := &transfer.PostCreationResult{}
	for _, profileID := range req.SelectedProfiles {
		profile, err := s.ownedProfile(ctx, profileID, userID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("profile %d: %v", profileID, err))
			continue
		}

		post := &models.Post{
			UserID:        userID,
			ProfileID:     profile.ID,
			Platform:      profile.Platform,
			Caption:       req.Caption,
			Title:         req.Title,
			MediaKind:     mediaKind,
			Format:        format,
			ScheduledTime: scheduledTime,
			Status:        models.PostStatusScheduled,
		}

		postID, err := s.pr.Create(ctx, nil, post)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("profile %d: %v", profileID, err))
			continue
		}

		for order, assetID := range req.AssetIDs {
			pm := &models.PostMedia{PostID: postID, AssetID: assetID, DisplayOrder: order}
			if err := s.pm.Create(ctx, nil, pm); err != nil {
				slog.Info(err.Error())
			}
		}

		if _, err := s.q.Enqueue(ctx, postID, userID, scheduledTime); err != nil {
			// The queue already reverted the post to draft with a note.
			result.Errors = append(result.Errors, fmt.Sprintf("post %d: %v", postID, err))
			continue
		}

		result.PostIDs = append(result.PostIDs, postID)
	}

	return result, nil
}

func (s *postService) ownedProfile(ctx context.Context, profileID, userID int64) (*models.Profile, error) {
	owned, err := s.pf.CheckByUserID(ctx, profileID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, errors.New("profile not found")
	}

	profile, err := s.pf.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errors.New("profile not found")
	}
	if !profile.IsActive {
		return nil, errors.New("profile is inactive; reconnect the account")
	}
	return profile, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostDetail, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, errors.New("post not found")
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, errors.New("post not found")
	}

	media, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		slog.Info(err.Error())
	}
	return &transfer.PostDetail{Post: post, Media: media}, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	return s.pr.GetByUserID(ctx, userID)
}

// Remove deletes a post and cancels any pending job for it. A job already
// running finishes on its own; its status write targets a row that is gone,
// which the worker treats as a benign skip.
func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !owned {
		return errors.New("post not found")
	}

	if _, err := s.q.Cancel(ctx, postID); err != nil {
		slog.Info(err.Error())
	}

	if err := s.pm.RemoveByPostID(ctx, postID); err != nil {
		return err
	}
	return s.pr.Remove(ctx, postID)
}

func (s *postService) Retry(ctx context.Context, userID, postID int64) error {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !owned {
		return errors.New("post not found")
	}

	_, err = s.q.Retry(ctx, postID, userID)
	return err
}

// Attempts lists the delivery history of a post in attempt order.
func (s *postService) Attempts(ctx context.Context, userID, postID int64) ([]*models.PublishHistory, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, errors.New("post not found")
	}
	return s.ph.ListByPostID(ctx, postID)
}

func (s *postService) CancelSchedule(ctx context.Context, userID, postID int64) (bool, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	if !owned {
		return false, errors.New("post not found")
	}

	removed, err := s.q.Cancel(ctx, postID)
	if err != nil {
		return false, err
	}
	if removed {
		if err := s.pr.RevertToDraft(ctx, postID, ""); err != nil {
			slog.Info(err.Error())
		}
	}
	return removed, nil
}
