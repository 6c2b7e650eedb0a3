package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/transfer"
)

const PlatformYoutube = "youtube"

// YoutubeAdapter uploads videos through the Data API. Exchange and refresh
// go through the oauth2 package instead of hand-built token requests because
// Google's endpoints are already modeled there.
type YoutubeAdapter struct {
	cfg config.Config

	googleEndpoint oauth2.Endpoint
	userInfoURL    string
	revokeURL      string
	newService     func(ctx context.Context, client *http.Client) (*youtube.Service, error)
}

func NewYoutubeAdapter(cfg config.Config) *YoutubeAdapter {
	return &YoutubeAdapter{
		cfg:            cfg,
		googleEndpoint: google.Endpoint,
		userInfoURL:    "https://www.googleapis.com/oauth2/v1/userinfo",
		revokeURL:      "https://oauth2.googleapis.com/revoke",
		newService: func(ctx context.Context, client *http.Client) (*youtube.Service, error) {
			return youtube.NewService(ctx, option.WithHTTPClient(client))
		},
	}
}

func (a *YoutubeAdapter) Platform() string { return PlatformYoutube }

func (a *YoutubeAdapter) RequiresPKCE() bool { return false }

func (a *YoutubeAdapter) Limits() Limits {
	return Limits{
		MaxTextLength:       5000,
		MaxMediaCount:       1,
		SupportsVideo:       true,
		AllowedImageFormats: nil,
		AllowedVideoFormats: []string{"mp4", "mov", "webm"},
		MaxVideoSizeBytes:   2 * 1024 * 1024 * 1024,
	}
}

func (a *YoutubeAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.GoogleClientID,
		ClientSecret: a.cfg.GoogleClientSecret,
		RedirectURL:  a.cfg.GoogleRedirectURI,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/youtube.upload",
		},
		Endpoint: a.googleEndpoint,
	}
}

func (a *YoutubeAdapter) AuthorizationURL(state, challenge string) string {
	return a.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (a *YoutubeAdapter) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	conf := a.oauthConfig()
	if conf.ClientID == "" || conf.ClientSecret == "" || conf.RedirectURL == "" {
		err := errors.New("OAuth2 configuration is incomplete")
		slog.Info(err.Error())
		return nil, err
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if token.RefreshToken == "" {
		err = errors.New("refresh token is empty")
		slog.Info(err.Error())
		return nil, err
	}

	return &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (a *YoutubeAdapter) Profile(ctx context.Context, cred *Credential) (*Profile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken}))

	response, err := client.Get(a.userInfoURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error fetching user info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformYoutube, response, "fetching user info failed")
	}

	var userInfo transfer.GoogleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error decoding user info: %w", err)
	}

	return &Profile{
		AccountID:      userInfo.ID,
		DisplayName:    userInfo.Name,
		Username:       userInfo.Email,
		AvatarURL:      userInfo.Picture,
		TokenExpiresAt: cred.ExpiresAt,
	}, nil
}

func (a *YoutubeAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	if len(media) != 1 || media[0].MediaType != models.MediaTypeVideo {
		return nil, &Error{Platform: PlatformYoutube, Kind: KindPayloadRejected, Message: "YouTube accepts exactly one video"}
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken}))
	service, err := a.newService(ctx, client)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	tempFile, err := downloadToTemp(ctx, media[0].URL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateTitle(text),
			Description: text,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Result{Ref: response.Id}, nil
}

// truncateTitle caps the caption at YouTube's 100 character title limit,
// counting runes so a multi-byte caption is never cut mid-character.
func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	return string(runes[:100])
}

func downloadToTemp(ctx context.Context, url string) (string, error) {
	tempFile, err := os.CreateTemp("", "video-*.mp4")
	if err != nil {
		return "", fmt.Errorf("error creating temporary file: %w", err)
	}
	defer tempFile.Close()

	content, err := fetchBytes(ctx, url)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("error downloading staged video: %w", err)
	}

	if _, err := io.Copy(tempFile, bytes.NewReader(content)); err != nil {
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("error saving video to temporary file: %w", err)
	}

	return tempFile.Name(), nil
}

func (a *YoutubeAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	conf := a.oauthConfig()
	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (a *YoutubeAdapter) Revoke(ctx context.Context, cred *Credential) error {
	req, err := http.NewRequestWithContext(ctx, "POST", a.revokeURL, bytes.NewReader([]byte("token="+cred.AccessToken)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sharedClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token, status code: %d", resp.StatusCode)
	}
	return nil
}
