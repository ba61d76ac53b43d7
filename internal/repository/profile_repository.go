package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/bachasia/schedy-sub001/internal/models"
)

const profileColumns = `id, user_id, platform, account_id, account_name, account_username,
	profile_picture_url, access_token, refresh_token, token_expires_at, is_active,
	deactivation_reason, metadata, created_at, updated_at`

type ProfileRepository interface {
	Create(ctx context.Context, tx *sql.Tx, p *models.Profile) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Profile, error)
	ListActiveExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Profile, error)
	CheckByUserID(ctx context.Context, profileID, userID int64) (bool, error)
	SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
	Deactivate(ctx context.Context, id int64, reason string) error
	Remove(ctx context.Context, id int64) error
}

type profileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, tx *sql.Tx, p *models.Profile) (int64, error) {
	var err error
	var id int64

	var insertQuery = `
			INSERT INTO profiles(
				user_id,
				platform,
				account_id,
				account_name,
				account_username,
				profile_picture_url,
				access_token,
				refresh_token,
				token_expires_at,
				is_active
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
			RETURNING id
		`

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery,
			p.UserID, p.Platform, p.AccountID, p.AccountName, p.AccountUsername,
			p.ProfilePicture, p.AccessToken, p.RefreshToken, p.TokenExpiresAt,
		).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery,
			p.UserID, p.Platform, p.AccountID, p.AccountName, p.AccountUsername,
			p.ProfilePicture, p.AccessToken, p.RefreshToken, p.TokenExpiresAt,
		).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func scanProfile(row interface{ Scan(dest ...any) error }) (*models.Profile, error) {
	var p models.Profile
	var reason sql.NullString
	var metadata []byte
	err := row.Scan(&p.ID, &p.UserID, &p.Platform, &p.AccountID, &p.AccountName,
		&p.AccountUsername, &p.ProfilePicture, &p.AccessToken, &p.RefreshToken,
		&p.TokenExpiresAt, &p.IsActive, &reason, &metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DeactivationReason = reason.String
	p.Metadata = metadata
	return &p, nil
}

func (r *profileRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	p, err := scanProfile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return p, nil
}

func (r *profileRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListActiveExpiringBefore loads active profiles whose token expires before
// the deadline. Profiles with a NULL expiry never expire and are excluded.
func (r *profileRepository) ListActiveExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + `
			FROM profiles
			WHERE is_active = TRUE
			AND token_expires_at IS NOT NULL
			AND token_expires_at < $1`
	rows, err := r.db.QueryContext(ctx, query, deadline)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return profiles, nil
}

func (r *profileRepository) CheckByUserID(ctx context.Context, profileID, userID int64) (bool, error) {
	query := "SELECT 1 FROM profiles WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, profileID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// SetToken persists a refreshed credential. Empty token strings keep the
// previous value, covering platforms that do not rotate the refresh token.
func (r *profileRepository) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE profiles
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = COALESCE($4, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1;
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; profile may not exist")
		return errors.New("no rows affected; profile may not exist")
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Deactivate flips the profile inactive with an auditable reason. The row is
// kept so the user can reconnect the account.
func (r *profileRepository) Deactivate(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE profiles
		SET is_active = FALSE,
			deactivation_reason = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *profileRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM profiles WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
