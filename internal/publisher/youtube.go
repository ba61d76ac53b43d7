package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	config "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/pkg/utils"
)

// youtubePublisher uploads videos through the YouTube Data API. The video is
// downloaded from the asset URL to a temp file first because the API wants a
// seekable reader. Refresh goes through the google OAuth2 token source with a
// stable (non-rotating) refresh token.
type youtubePublisher struct {
	cfg config.Config
}

func NewYoutubePublisher(cfg config.Config) Publisher {
	return &youtubePublisher{cfg: cfg}
}

func (yt *youtubePublisher) Platform() models.Platform {
	return models.PlatformYoutube
}

func (yt *youtubePublisher) Publish(ctx context.Context, profile *models.Profile, content Content) (*Result, error) {
	accessToken, err := utils.Decrypt(profile.AccessToken, []byte(yt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{AccessToken: accessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	tempFile, err := downloadToTempFile(ctx, content.MediaURLs[0])
	if err != nil {
		return nil, NewError(models.PlatformYoutube, KindInvalidMedia, "unable to fetch video from url", err)
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer file.Close()

	title := content.Title
	if title == "" {
		title = content.Caption
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: content.Caption,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		return nil, classifyYoutubeError(err)
	}

	metadata := map[string]string{"url": "https://youtu.be/" + response.Id}
	if content.Format == models.FormatShort {
		metadata["format"] = "short"
	}

	return &Result{PlatformPostID: response.Id, Metadata: metadata}, nil
}

func downloadToTempFile(ctx context.Context, mediaURL string) (string, error) {
	tempFile, err := os.CreateTemp("", "video-*.mp4")
	if err != nil {
		return "", fmt.Errorf("error creating temporary file: %w", err)
	}
	defer tempFile.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return "", err
	}

	response, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading video: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected response status: %d", response.StatusCode)
	}

	if _, err = io.Copy(tempFile, response.Body); err != nil {
		return "", fmt.Errorf("error saving video to temporary file: %w", err)
	}

	return tempFile.Name(), nil
}

// classifyYoutubeError maps googleapi errors by status and reason string.
func classifyYoutubeError(err error) *Error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return NewError(models.PlatformYoutube, KindUnknown, err.Error(), err)
	}

	kind := KindUnknown
	reasons := strings.ToLower(gerr.Message)
	for _, e := range gerr.Errors {
		reasons += " " + strings.ToLower(e.Reason)
	}

	switch {
	case gerr.Code == http.StatusUnauthorized || strings.Contains(reasons, "authorizationrequired"):
		kind = KindTokenExpired
	case strings.Contains(reasons, "uploadlimitexceeded") || strings.Contains(reasons, "quotaexceeded"):
		kind = KindSpamOrQuotaRisk
	case strings.Contains(reasons, "ratelimitexceeded") || gerr.Code == http.StatusTooManyRequests:
		kind = KindRateLimited
	case gerr.Code == http.StatusForbidden:
		kind = KindPermissionDenied
	case strings.Contains(reasons, "invalidvideo") || strings.Contains(reasons, "mediabodyrequired"):
		kind = KindInvalidMedia
	}

	return NewError(models.PlatformYoutube, kind, gerr.Message, err)
}

// RefreshToken trades the stored refresh token for a new access token via the
// google token source. YouTube does not rotate refresh tokens, so only the
// access token and expiry are replaced.
func (yt *youtubePublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*Credential, error) {
	conf := &oauth2.Config{
		ClientID:     yt.cfg.GoogleClientID,
		ClientSecret: yt.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}

	refreshToken, err := utils.Decrypt(profile.RefreshToken, []byte(yt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, NewError(models.PlatformYoutube, KindTokenExpired, "refresh token exchange failed", err)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(yt.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	expiry := token.Expiry
	return &Credential{
		AccessToken: encryptedAccessToken,
		ExpiresAt:   &expiry,
	}, nil
}
