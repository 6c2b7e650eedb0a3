package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/transfer"
)

const (
	twitterAuthURL  = "https://twitter.com/i/oauth2/authorize"
	twitterScopes   = "tweet.read tweet.write users.read offline.access"
	PlatformTwitter = "twitter"
)

// TwitterAdapter publishes tweets through the v2 API. Twitter requires PKCE
// on the authorization code flow and takes no client secret for public
// clients; the exchange sends only the client id and the verifier.
type TwitterAdapter struct {
	cfg     config.Config
	limiter *rate.Limiter

	authBase   string
	tokenURL   string
	apiBase    string
	uploadBase string
}

func NewTwitterAdapter(cfg config.Config) *TwitterAdapter {
	return &TwitterAdapter{
		cfg:        cfg,
		limiter:    newLimiter(),
		authBase:   twitterAuthURL,
		tokenURL:   "https://api.twitter.com/2/oauth2/token",
		apiBase:    "https://api.twitter.com/2",
		uploadBase: "https://upload.twitter.com/1.1",
	}
}

func (a *TwitterAdapter) Platform() string { return PlatformTwitter }

func (a *TwitterAdapter) RequiresPKCE() bool { return true }

func (a *TwitterAdapter) Limits() Limits {
	return Limits{
		MaxTextLength:       280,
		MaxMediaCount:       4,
		SupportsVideo:       true,
		AllowedImageFormats: []string{"jpg", "jpeg", "png", "gif", "webp"},
		AllowedVideoFormats: []string{"mp4"},
		MaxImageSizeBytes:   5 * 1024 * 1024,
		MaxVideoSizeBytes:   512 * 1024 * 1024,
	}
}

func (a *TwitterAdapter) AuthorizationURL(state, challenge string) string {
	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", a.cfg.TwitterClientID)
	params.Add("redirect_uri", a.cfg.TwitterRedirectURI)
	params.Add("scope", twitterScopes)
	params.Add("state", state)
	params.Add("code_challenge", challenge)
	params.Add("code_challenge_method", "S256")

	return fmt.Sprintf("%s?%s", a.authBase, params.Encode())
}

func (a *TwitterAdapter) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.TwitterClientID)
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", a.cfg.TwitterRedirectURI)
	data.Set("code_verifier", verifier)

	req, err := http.NewRequest("POST", a.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("Twitter token endpoint returned non-200 status")
		return nil, errors.New("Twitter token endpoint returned non-200 status")
	}

	var tokenResponse transfer.TwitterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &Credential{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (a *TwitterAdapter) Profile(ctx context.Context, cred *Credential) (*Profile, error) {
	endpoint := a.apiBase + "/users/me?user.fields=profile_image_url,public_metrics,name,username"

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformTwitter, resp, "fetching profile failed")
	}

	var result transfer.TwitterUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Profile{
		AccountID:      result.Data.ID,
		DisplayName:    result.Data.Name,
		Username:       result.Data.Username,
		AvatarURL:      result.Data.ProfileImageURL,
		FollowerCount:  result.Data.PublicMetrics.FollowersCount,
		TokenExpiresAt: cred.ExpiresAt,
	}, nil
}

func (a *TwitterAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	var mediaIDs []string
	for _, item := range media {
		id, err := a.uploadMedia(ctx, item, cred)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, id)
	}

	tweet := transfer.TweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		tweet.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}

	jsonData, err := json.Marshal(tweet)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", a.apiBase+"/tweets", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var result transfer.TweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformTwitter, resp, result.Detail)
	}

	return &Result{Ref: result.Data.ID}, nil
}

// uploadMedia stages one item through the chunked-upload endpoint's simple
// form and returns the media id to reference from the tweet.
func (a *TwitterAdapter) uploadMedia(ctx context.Context, item models.MediaItem, cred *Credential) (string, error) {
	content, err := fetchBytes(ctx, item.URL)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", item.ID)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", a.uploadBase+"/media/upload.json", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(PlatformTwitter, resp, "media upload failed")
	}

	var result transfer.TwitterMediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return result.MediaIDString, nil
}

func (a *TwitterAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.TwitterClientID)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequest("POST", a.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformTwitter, resp, "token refresh failed")
	}

	var tokenResponse transfer.TwitterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (a *TwitterAdapter) Revoke(ctx context.Context, cred *Credential) error {
	data := url.Values{}
	data.Set("client_id", a.cfg.TwitterClientID)
	data.Set("token", cred.AccessToken)

	req, err := http.NewRequest("POST", a.apiBase+"/oauth2/revoke", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token, status code: %d", resp.StatusCode)
	}
	return nil
}
