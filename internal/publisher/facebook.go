package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/transfer"
	"github.com/bachasia/schedy-sub001/pkg/utils"
)

const facebookGraphBase = "https://graph.facebook.com/v21.0"

// facebookPublisher posts to a page feed. Page tokens do not expire
// (profile.TokenExpiresAt is nil for them); user tokens are long-lived and
// refreshed through the fb_exchange_token grant.
type facebookPublisher struct {
	cfg config.Config
}

func NewFacebookPublisher(cfg config.Config) Publisher {
	return &facebookPublisher{cfg: cfg}
}

func (fb *facebookPublisher) Platform() models.Platform {
	return models.PlatformFacebook
}

func (fb *facebookPublisher) Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(fb.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("access_token", accessToken)

	var endpoint string
	switch {
	case len(content.MediaURLs) == 0:
		endpoint = facebookGraphBase + "/" + profile.AccountID + "/feed"
		data.Set("message", content.Caption)
	case content.MediaKind == models.MediaKindVideo:
		endpoint = facebookGraphBase + "/" + profile.AccountID + "/videos"
		data.Set("file_url", content.MediaURLs[0])
		data.Set("description", content.Caption)
	default:
		endpoint = facebookGraphBase + "/" + profile.AccountID + "/photos"
		data.Set("url", content.MediaURLs[0])
		data.Set("message", content.Caption)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, NewError(models.PlatformFacebook, KindUnknown, "graph request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyGraphError(models.PlatformFacebook, resp.StatusCode, respBody)
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	postID := result.PostID
	if postID == "" {
		postID = result.ID
	}
	if postID == "" {
		return nil, NewError(models.PlatformFacebook, KindUnknown, "no post id returned", nil)
	}

	return &Result{
		PlatformPostID: postID,
		Metadata:       map[string]string{"page_id": profile.AccountID},
	}, nil
}

// RefreshToken exchanges the current user token for a fresh ~60-day one. Page
// tokens never reach here: a nil expiry keeps them out of the refresh paths.
func (fb *facebookPublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(fb.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", fb.cfg.FacebookAppID)
	params.Set("client_secret", fb.cfg.FacebookAppSecret)
	params.Set("fb_exchange_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", facebookGraphBase+"/oauth/access_token?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyGraphError(models.PlatformFacebook, resp.StatusCode, body)
	}

	var result transfer.FacebookTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(result.AccessToken), []byte(fb.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	cred := &Credential{AccessToken: encryptedAccessToken}
	if result.ExpiresIn > 0 {
		cred.ExpiresAt = expiryFromSeconds(result.ExpiresIn)
	}
	return cred, nil
}
