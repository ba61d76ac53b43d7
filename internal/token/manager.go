package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/ratelimit"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/publisher"
	"github.com/bachasia/schedy-sub001/internal/repository"
)

// Registry resolves the platform adapter holding each network's refresh
// semantics. *dispatch.Dispatcher satisfies it.
type Registry interface {
	PublisherFor(p models.Platform) (publisher.Publisher, bool)
}

// RefreshReport summarizes one proactive sweep.
type RefreshReport struct {
	Total     int `json:"total"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// Manager keeps profile credentials usable. A failed refresh never deletes a
// profile; it only deactivates it with a recorded reason so the user can
// reconnect.
type Manager struct {
	profiles  repository.ProfileRepository
	registry  Registry
	lookahead time.Duration
	limiter   ratelimit.Limiter

	now func() time.Time
}

func NewManager(profiles repository.ProfileRepository, registry Registry, cfg config.Tokens) *Manager {
	rate := cfg.SweepRatePerSec
	if rate <= 0 {
		rate = 1
	}
	return &Manager{
		profiles:  profiles,
		registry:  registry,
		lookahead: cfg.RefreshLookahead,
		limiter:   ratelimit.New(rate),
		now:       time.Now,
	}
}

// EnsureValid is called right before a publish attempt. It reports whether
// the profile's credential can be used. An expired token triggers a refresh
// and deactivates the profile when that fails. A token merely inside the
// lookahead window gets a best-effort refresh: if that fails while the token
// is still valid, the publish is allowed to proceed rather than being blocked
// by a refresh hiccup.
func (m *Manager) EnsureValid(ctx context.Context, profileID int64) (bool, error) {
	profile, err := m.profiles.GetByID(ctx, profileID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return false, nil
	}

	if !profile.IsActive {
		return false, nil
	}

	now := m.now()

	// Non-expiring tokens (facebook page tokens) are always valid.
	if profile.TokenExpiresAt == nil {
		return true, nil
	}

	if profile.TokenExpired(now) {
		if err := m.refresh(ctx, profile); err != nil {
			reason := fmt.Sprintf("token expired and refresh failed: %v", err)
			m.deactivate(ctx, profile, reason)
			return false, nil
		}
		slog.Info("refreshed expired token",
			slog.Int64("profile_id", profile.ID),
			slog.String("platform", string(profile.Platform)),
		)
		return true, nil
	}

	if profile.TokenExpiresWithin(now, m.lookahead) {
		if err := m.refresh(ctx, profile); err != nil {
			// The token is still valid; a failed proactive refresh is logged
			// but does not block the publish or deactivate the profile.
			slog.Warn("proactive refresh failed, token still valid",
				slog.Int64("profile_id", profile.ID),
				slog.String("platform", string(profile.Platform)),
				slog.String("error", err.Error()),
			)
		}
		return true, nil
	}

	return true, nil
}

// HandleRejectedToken deals with a platform rejecting a token the store still
// considered valid. It forces a refresh; failure deactivates the profile.
// Returns whether a publish retry is worth scheduling.
func (m *Manager) HandleRejectedToken(ctx context.Context, profileID int64) bool {
	profile, err := m.profiles.GetByID(ctx, profileID)
	if err != nil || profile == nil || !profile.IsActive {
		return false
	}

	if err := m.refresh(ctx, profile); err != nil {
		reason := fmt.Sprintf("platform rejected token and refresh failed: %v", err)
		m.deactivate(ctx, profile, reason)
		return false
	}

	slog.Info("recovered rejected token",
		slog.Int64("profile_id", profile.ID),
		slog.String("platform", string(profile.Platform)),
	)
	return true
}

// RefreshExpiring sweeps every active profile whose token expires inside the
// lookahead window, pacing the refresh calls out of courtesy to the platform
// token endpoints. Profiles whose refresh fails are deactivated.
func (m *Manager) RefreshExpiring(ctx context.Context) (RefreshReport, error) {
	deadline := m.now().Add(m.lookahead)

	profiles, err := m.profiles.ListActiveExpiringBefore(ctx, deadline)
	if err != nil {
		slog.Info(err.Error())
		return RefreshReport{}, err
	}

	report := RefreshReport{Total: len(profiles)}
	for _, profile := range profiles {
		m.limiter.Take()

		if err := m.refresh(ctx, profile); err != nil {
			report.Failed++
			reason := fmt.Sprintf("sweep refresh failed: %v", err)
			m.deactivate(ctx, profile, reason)
			continue
		}
		report.Refreshed++
	}

	slog.Info("token refresh sweep finished",
		slog.Int("total", report.Total),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (m *Manager) refresh(ctx context.Context, profile *models.Profile) error {
	pub, ok := m.registry.PublisherFor(profile.Platform)
	if !ok {
		return errors.New("no publisher registered for platform")
	}

	cred, err := pub.RefreshToken(ctx, profile)
	if err != nil {
		return err
	}

	// An empty refresh token in cred keeps the stored one; platforms that do
	// not rotate it simply return nothing.
	return m.profiles.SetToken(ctx, profile.ID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
}

func (m *Manager) deactivate(ctx context.Context, profile *models.Profile, reason string) {
	slog.Warn("deactivating profile",
		slog.Int64("profile_id", profile.ID),
		slog.String("platform", string(profile.Platform)),
		slog.String("reason", reason),
	)
	if err := m.profiles.Deactivate(ctx, profile.ID, reason); err != nil {
		slog.Info(err.Error())
	}
}
