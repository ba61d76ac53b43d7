package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bachasia/schedy-sub001/internal/models"
)

func TestClassifyGraphError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"expired token code", 400, `{"error":{"message":"Error validating access token","code":190}}`, KindTokenExpired},
		{"unauthorized status", 401, `{}`, KindTokenExpired},
		{"app throttled", 400, `{"error":{"message":"Application request limit reached","code":4}}`, KindRateLimited},
		{"account throttled", 400, `{"error":{"code":17}}`, KindRateLimited},
		{"http 429", 429, `{}`, KindRateLimited},
		{"policy block", 400, `{"error":{"message":"temporarily blocked","code":368}}`, KindSpamOrQuotaRisk},
		{"missing permission", 400, `{"error":{"message":"requires pages_manage_posts","code":200}}`, KindPermissionDenied},
		{"forbidden status", 403, `{}`, KindPermissionDenied},
		{"media ingest failure", 400, `{"error":{"message":"media could not be fetched","code":1,"error_subcode":2207026}}`, KindInvalidMedia},
		{"unparseable body", 500, `<html>`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGraphError(models.PlatformInstagram, tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, models.PlatformInstagram, err.Platform)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestClassifyTiktokError(t *testing.T) {
	tests := []struct {
		code string
		want ErrorKind
	}{
		{"access_token_invalid", KindTokenExpired},
		{"rate_limit_exceeded", KindRateLimited},
		{"spam_risk_too_many_posts", KindSpamOrQuotaRisk},
		{"spam_risk_user_banned_from_posting", KindSpamOrQuotaRisk},
		{"scope_not_authorized", KindPermissionDenied},
		{"video_pull_failed", KindInvalidMedia},
		{"frame_rate_check_failed", KindInvalidMedia},
		{"internal_error", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classifyTiktokError(tt.code, "")
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.code, err.Message)
		})
	}
}

func TestClassifyTwitterError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", 401, `{"title":"Unauthorized"}`, KindTokenExpired},
		{"rate limited", 429, `{"title":"Too Many Requests"}`, KindRateLimited},
		{"duplicate content", 403, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`, KindSpamOrQuotaRisk},
		{"forbidden", 403, `{"detail":"Your account is not permitted to access this feature."}`, KindPermissionDenied},
		{"bad media", 400, `{"detail":"The media id is invalid."}`, KindInvalidMedia},
		{"server error", 500, `{}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTwitterError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, err.Kind)
		})
	}
}
