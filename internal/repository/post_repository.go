package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bachasia/schedy-sub001/internal/models"
)

const postColumns = `id, user_id, profile_id, platform, caption, title, media_kind, format,
	scheduled_time, status, published_at, failed_at, error_message, platform_post_id,
	metadata, created_at, updated_at`

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	SetStatus(ctx context.Context, status string, postID int64) error
	MarkScheduled(ctx context.Context, postID int64, note string) error
	MarkPublished(ctx context.Context, postID int64, platformPostID string, metadata json.RawMessage) error
	MarkFailed(ctx context.Context, postID int64, errMsg string) error
	RevertToDraft(ctx context.Context, postID int64, note string) error
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, profile_id, platform, caption, title, media_kind, format, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.ProfileID, post.Platform, post.Caption,
			post.Title, post.MediaKind, post.Format, post.ScheduledTime, post.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.ProfileID, post.Platform, post.Caption,
			post.Title, post.MediaKind, post.Format, post.ScheduledTime, post.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func scanPost(row interface{ Scan(dest ...any) error }) (*models.Post, error) {
	var post models.Post
	var errMsg, platformPostID sql.NullString
	var metadata []byte
	err := row.Scan(&post.ID, &post.UserID, &post.ProfileID, &post.Platform, &post.Caption,
		&post.Title, &post.MediaKind, &post.Format, &post.ScheduledTime, &post.Status,
		&post.PublishedAt, &post.FailedAt, &errMsg, &platformPostID, &metadata,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	post.ErrorMessage = errMsg.String
	post.PlatformPostID = platformPostID.String
	post.Metadata = metadata
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) SetStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkScheduled puts the post back into the scheduled state, clearing any
// terminal failure fields. note carries the last attempt's error for
// visibility between retries; pass "" on a manual retry.
func (r *postRepository) MarkScheduled(ctx context.Context, postID int64, note string) error {
	query := `
		UPDATE posts
		SET status = $1,
			failed_at = NULL,
			error_message = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, note, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, platformPostID string, metadata json.RawMessage) error {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			failed_at = NULL,
			error_message = '',
			platform_post_id = $3,
			metadata = $4,
			updated_at = $2
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, time.Now(), platformPostID, []byte(metadata), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64, errMsg string) error {
	query := `
		UPDATE posts
		SET status = $1,
			failed_at = $2,
			error_message = $3,
			updated_at = $2
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, time.Now(), errMsg, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// RevertToDraft returns a post to the caller-visible draft state when the
// queue backend refused the enqueue, so the schedule request can be retried.
func (r *postRepository) RevertToDraft(ctx context.Context, postID int64, note string) error {
	query := `
		UPDATE posts
		SET status = $1,
			error_message = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusDraft, note, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
