package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/transfer"
	"github.com/bachasia/schedy-sub001/pkg/utils"
)

const (
	tiktokTokenURL       = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokVideoInitURL   = "https://open.tiktokapis.com/v2/post/publish/video/init/"
	tiktokContentInitURL = "https://open.tiktokapis.com/v2/post/publish/content/init/"
	tiktokStatusURL      = "https://open.tiktokapis.com/v2/post/publish/status/fetch/"

	// Video processing on TikTok's side legitimately takes tens of seconds.
	// The poll loop is capped so a stuck upload cannot hold a worker forever.
	tiktokMaxStatusPolls    = 10
	tiktokStatusPollEvery   = 5 * time.Second
	tiktokStatusInflight    = "PROCESSING_UPLOAD"
	tiktokStatusDownloading = "PROCESSING_DOWNLOAD"
)

// tiktokPublisher posts through the TikTok content posting API. Videos are
// pulled from URL and confirmed by polling the publish status endpoint.
type tiktokPublisher struct {
	cfg config.Config
}

func NewTiktokPublisher(cfg config.Config) Publisher {
	return &tiktokPublisher{cfg: cfg}
}

func (tt *tiktokPublisher) Platform() models.Platform {
	return models.PlatformTiktok
}

func (tt *tiktokPublisher) Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(tt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	var publishID string
	if content.MediaKind == models.MediaKindVideo {
		publishID, err = tt.initVideo(ctx, accessToken, content)
	} else {
		publishID, err = tt.initPhotos(ctx, accessToken, content)
	}
	if err != nil {
		return nil, err
	}

	status, err := tt.waitForPublish(ctx, accessToken, publishID)
	if err != nil {
		return nil, err
	}

	return &Result{
		PlatformPostID: publishID,
		Metadata:       map[string]string{"publish_status": status},
	}, nil
}

func (tt *tiktokPublisher) initVideo(ctx context.Context, accessToken string, content Content) (string, error) {
	uploadRequest := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 content.Caption,
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: content.MediaURLs[0],
		},
	}

	result, err := tt.postInit(ctx, tiktokVideoInitURL, accessToken, uploadRequest)
	if err != nil {
		return "", err
	}
	return result.Data.PublishID, nil
}

func (tt *tiktokPublisher) initPhotos(ctx context.Context, accessToken string, content Content) (string, error) {
	uploadRequest := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Title:        content.Caption,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 1,
			PhotoImages:     content.MediaURLs,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	result, err := tt.postInit(ctx, tiktokContentInitURL, accessToken, uploadRequest)
	if err != nil {
		return "", err
	}
	return result.Data.PublishID, nil
}

func (tt *tiktokPublisher) postInit(ctx context.Context, endpoint, accessToken string, payload interface{}) (*transfer.TiktokUploadResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, NewError(models.PlatformTiktok, KindUnknown, "init request failed", err)
	}
	defer resp.Body.Close()

	var result transfer.TiktokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if result.Error.Code != "" && result.Error.Code != "ok" {
		return nil, classifyTiktokError(result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(models.PlatformTiktok, KindUnknown,
			fmt.Sprintf("init returned status %d", resp.StatusCode), nil)
	}
	if result.Data.PublishID == "" {
		return nil, NewError(models.PlatformTiktok, KindUnknown, "no publish id returned", nil)
	}

	return &result, nil
}

// waitForPublish polls the status endpoint until the post leaves processing
// or the poll budget runs out. Running out is reported as Unknown so the
// queue can try again later; TikTok may well have published in the meantime,
// in which case the next delivery becomes a duplicate no-op.
func (tt *tiktokPublisher) waitForPublish(ctx context.Context, accessToken, publishID string) (string, error) {
	for poll := 0; poll < tiktokMaxStatusPolls; poll++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(tiktokStatusPollEvery):
		}

		status, failReason, err := tt.fetchStatus(ctx, accessToken, publishID)
		if err != nil {
			return "", err
		}

		switch status {
		case tiktokStatusInflight, tiktokStatusDownloading:
			continue
		case "FAILED":
			return "", classifyTiktokError(failReason, "publish failed: "+failReason)
		default:
			return status, nil
		}
	}

	return "", NewError(models.PlatformTiktok, KindUnknown,
		fmt.Sprintf("publish %s still processing after %d polls", publishID, tiktokMaxStatusPolls), nil)
}

func (tt *tiktokPublisher) fetchStatus(ctx context.Context, accessToken, publishID string) (string, string, error) {
	body, err := json.Marshal(map[string]string{"publish_id": publishID})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tiktokStatusURL, bytes.NewBuffer(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", err
	}
	defer resp.Body.Close()

	var result transfer.TiktokStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", err
	}

	if result.Error.Code != "" && result.Error.Code != "ok" {
		return "", "", classifyTiktokError(result.Error.Code, result.Error.Message)
	}

	return result.Data.Status, result.Data.FailReason, nil
}

// classifyTiktokError maps the string error codes of the content posting API.
func classifyTiktokError(code, message string) *Error {
	if message == "" {
		message = code
	}

	kind := KindUnknown
	switch {
	case code == "access_token_invalid" || code == "token_expired":
		kind = KindTokenExpired
	case code == "rate_limit_exceeded" || code == "too_many_requests":
		kind = KindRateLimited
	case strings.HasPrefix(code, "spam_risk"):
		kind = KindSpamOrQuotaRisk
	case code == "scope_not_authorized" || code == "scope_permission_missed" || code == "unaudited_client_can_only_post_to_private_accounts":
		kind = KindPermissionDenied
	case strings.Contains(code, "picture_size_check_failed") || strings.Contains(code, "photo_pull_failed") ||
		strings.Contains(code, "video_pull_failed") || strings.Contains(code, "file_format_check_failed") ||
		strings.Contains(code, "duration_check_failed") || strings.Contains(code, "frame_rate_check_failed"):
		kind = KindInvalidMedia
	}

	return NewError(models.PlatformTiktok, kind, message, nil)
}

// RefreshToken exchanges the refresh token for a new access+refresh pair.
// TikTok rotates the refresh token, so whatever comes back is persisted.
func (tt *tiktokPublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error) {
	refreshToken, err := utils.Decrypt(profile.RefreshToken, []byte(tt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("client_key", tt.cfg.TiktokClientKey)
	data.Set("client_secret", tt.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", tiktokTokenURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(models.PlatformTiktok, KindTokenExpired,
			fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, bodyBytes), nil)
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.Unmarshal(bodyBytes, &tokenResponse); err != nil {
		return nil, err
	}
	if tokenResponse.Error != "" {
		return nil, NewError(models.PlatformTiktok, KindTokenExpired, tokenResponse.ErrorDescription, nil)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(tt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	var encryptedRefreshToken string
	if tokenResponse.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(tt.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
	}

	return &Credential{
		AccessToken:  encryptedAccessToken,
		RefreshToken: encryptedRefreshToken,
		ExpiresAt:    expiryFromSeconds(tokenResponse.ExpiresIn),
	}, nil
}
