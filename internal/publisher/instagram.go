package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/transfer"
	"github.com/bachasia/schedy-sub001/pkg/utils"
)

const instagramGraphBase = "https://graph.instagram.com/v21.0"

// instagramPublisher posts through the Instagram Graph API: a media container
// per item, then a publish call. Tokens are long-lived and refreshed by
// exchanging the current token for a new one.
type instagramPublisher struct {
	cfg config.Config
}

func NewInstagramPublisher(cfg config.Config) Publisher {
	return &instagramPublisher{cfg: cfg}
}

func (ig *instagramPublisher) Platform() models.Platform {
	return models.PlatformInstagram
}

func (ig *instagramPublisher) Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(ig.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	var containerID string
	if len(content.MediaURLs) > 1 && content.MediaKind == models.MediaKindCarousel {
		containerID, err = ig.createCarouselContainer(ctx, profile.AccountID, accessToken, content)
	} else {
		containerID, err = ig.createContainer(ctx, profile.AccountID, accessToken, content.MediaURLs[0], content, false)
	}
	if err != nil {
		return nil, err
	}

	mediaID, err := ig.publishContainer(ctx, profile.AccountID, containerID, accessToken)
	if err != nil {
		return nil, err
	}

	return &Result{
		PlatformPostID: mediaID,
		Metadata:       map[string]string{"container_id": containerID},
	}, nil
}

func (ig *instagramPublisher) createContainer(ctx context.Context, accountID, accessToken, mediaURL string, content Content, carouselItem bool) (string, error) {
	url := fmt.Sprintf("%s/%s/media", instagramGraphBase, accountID)

	payload := map[string]interface{}{
		"access_token": accessToken,
	}
	if content.MediaKind == models.MediaKindVideo || content.Format == models.FormatReel {
		payload["media_type"] = "REELS"
		payload["video_url"] = mediaURL
	} else if content.Format == models.FormatStory {
		payload["media_type"] = "STORIES"
		payload["image_url"] = mediaURL
	} else {
		payload["image_url"] = mediaURL
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else {
		payload["caption"] = content.Caption
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := ig.postGraph(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", NewError(models.PlatformInstagram, KindUnknown, "no container id returned", nil)
	}
	return result.ID, nil
}

func (ig *instagramPublisher) createCarouselContainer(ctx context.Context, accountID, accessToken string, content Content) (string, error) {
	children := make([]string, 0, len(content.MediaURLs))
	for _, mediaURL := range content.MediaURLs {
		id, err := ig.createContainer(ctx, accountID, accessToken, mediaURL, content, true)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	url := fmt.Sprintf("%s/%s/media", instagramGraphBase, accountID)
	payload := map[string]interface{}{
		"media_type":   "CAROUSEL",
		"children":     children,
		"caption":      content.Caption,
		"access_token": accessToken,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := ig.postGraph(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", NewError(models.PlatformInstagram, KindUnknown, "no carousel container id returned", nil)
	}
	return result.ID, nil
}

func (ig *instagramPublisher) publishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", instagramGraphBase, accountID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := ig.postGraph(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", NewError(models.PlatformInstagram, KindUnknown, "no media id returned", nil)
	}
	return result.ID, nil
}

func (ig *instagramPublisher) postGraph(ctx context.Context, url string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return NewError(models.PlatformInstagram, KindUnknown, "graph request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return classifyGraphError(models.PlatformInstagram, resp.StatusCode, respBody)
	}

	return json.Unmarshal(respBody, out)
}

// RefreshToken exchanges the current long-lived token for a fresh one. No
// refresh token is involved; Instagram simply re-issues the access token.
func (ig *instagramPublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(ig.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		accessToken,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
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
		return nil, classifyGraphError(models.PlatformInstagram, resp.StatusCode, body)
	}

	var result transfer.InstagramRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(result.AccessToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken: encryptedAccessToken,
		ExpiresAt:   expiryFromSeconds(result.ExpiresIn),
	}, nil
}
