package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/transfer"
	"github.com/bachasia/schedy-sub001/pkg/utils"
)

const (
	twitterTweetsURL      = "https://api.twitter.com/2/tweets"
	twitterTokenURL       = "https://api.twitter.com/2/oauth2/token"
	twitterMediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
)

// twitterPublisher posts tweets through the v2 API. Media still goes through
// the v1.1 upload endpoint, pulled from the asset URL first. OAuth2 refresh
// tokens rotate on every refresh.
type twitterPublisher struct {
	cfg config.Config
}

func NewTwitterPublisher(cfg config.Config) Publisher {
	return &twitterPublisher{cfg: cfg}
}

func (tw *twitterPublisher) Platform() models.Platform {
	return models.PlatformTwitter
}

func (tw *twitterPublisher) Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(tw.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"text": content.Caption,
	}

	if len(content.MediaURLs) > 0 {
		mediaIDs := make([]string, 0, len(content.MediaURLs))
		for _, mediaURL := range content.MediaURLs {
			mediaID, err := tw.uploadMedia(ctx, accessToken, mediaURL)
			if err != nil {
				return nil, err
			}
			mediaIDs = append(mediaIDs, mediaID)
		}
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", twitterTweetsURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, NewError(models.PlatformTwitter, KindUnknown, "tweet request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classifyTwitterError(resp.StatusCode, respBody)
	}

	var result struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if result.Data.ID == "" {
		return nil, NewError(models.PlatformTwitter, KindUnknown, "no tweet id returned", nil)
	}

	return &Result{
		PlatformPostID: result.Data.ID,
		Metadata:       map[string]string{"username": profile.AccountUsername},
	}, nil
}

// uploadMedia pulls the asset from its URL and pushes it through the v1.1
// upload endpoint, returning the media id string.
func (tw *twitterPublisher) uploadMedia(ctx context.Context, accessToken, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", NewError(models.PlatformTwitter, KindInvalidMedia, "unable to fetch media from url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewError(models.PlatformTwitter, KindInvalidMedia,
			fmt.Sprintf("media url returned status %d", resp.StatusCode), nil)
	}

	mediaBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormField("media_data")
	if err != nil {
		return "", err
	}
	if _, err := part.Write([]byte(base64.StdEncoding.EncodeToString(mediaBytes))); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	uploadReq, err := http.NewRequestWithContext(ctx, "POST", twitterMediaUploadURL, &buf)
	if err != nil {
		return "", err
	}
	uploadReq.Header.Set("Authorization", "Bearer "+accessToken)
	uploadReq.Header.Set("Content-Type", writer.FormDataContentType())

	uploadResp, err := httpClient.Do(uploadReq)
	if err != nil {
		slog.Info(err.Error())
		return "", NewError(models.PlatformTwitter, KindUnknown, "media upload failed", err)
	}
	defer uploadResp.Body.Close()

	uploadBody, err := io.ReadAll(uploadResp.Body)
	if err != nil {
		return "", err
	}

	if uploadResp.StatusCode != http.StatusOK {
		return "", classifyTwitterError(uploadResp.StatusCode, uploadBody)
	}

	var uploadResult struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(uploadBody, &uploadResult); err != nil {
		return "", err
	}
	if uploadResult.MediaIDString == "" {
		return "", NewError(models.PlatformTwitter, KindInvalidMedia, "no media id returned", nil)
	}

	return uploadResult.MediaIDString, nil
}

func classifyTwitterError(statusCode int, body []byte) *Error {
	var parsed struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &parsed)

	message := parsed.Detail
	if message == "" {
		message = fmt.Sprintf("twitter api status %d", statusCode)
	}

	kind := KindUnknown
	lower := strings.ToLower(message + " " + parsed.Title)
	switch {
	case statusCode == http.StatusUnauthorized:
		kind = KindTokenExpired
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case strings.Contains(lower, "duplicate") || strings.Contains(lower, "spam"):
		kind = KindSpamOrQuotaRisk
	case statusCode == http.StatusForbidden:
		kind = KindPermissionDenied
	case strings.Contains(lower, "media"):
		kind = KindInvalidMedia
	}

	return NewError(models.PlatformTwitter, kind, message, nil)
}

// RefreshToken exchanges the rotating refresh token for a new pair. The
// returned refresh token always replaces the stored one.
func (tw *twitterPublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error) {
	refreshToken, err := utils.Decrypt(profile.RefreshToken, []byte(tw.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", tw.cfg.TwitterClientID)

	req, err := http.NewRequestWithContext(ctx, "POST", twitterTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(tw.cfg.TwitterClientID, tw.cfg.TwitterClientSecret)

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(models.PlatformTwitter, KindTokenExpired,
			fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, respBody), nil)
	}

	var tokenResponse transfer.TwitterTokenResponse
	if err := json.Unmarshal(respBody, &tokenResponse); err != nil {
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(tw.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	var encryptedRefreshToken string
	if tokenResponse.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(tw.cfg.SecretKey))
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
