package job

import (
	"context"
	"log/slog"

	"github.com/bachasia/schedy-sub001/internal/token"
)

// TokenRefreshJob is the cron-triggered proactive sweep keeping soon-to-expire
// credentials alive before the queue ever needs them.
type TokenRefreshJob struct {
	tm *token.Manager
}

func NewTokenRefreshJob(tm *token.Manager) *TokenRefreshJob {
	return &TokenRefreshJob{tm: tm}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	report, err := j.tm.RefreshExpiring(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	slog.Info("proactive token refresh complete",
		slog.Int("total", report.Total),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("failed", report.Failed),
	)
}
