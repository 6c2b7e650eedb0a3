package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/transfer"
)

const PlatformInstagram = "instagram"

// InstagramAdapter publishes through the content-publishing Graph flow:
// short-lived token, long-lived exchange, media containers, publish call.
type InstagramAdapter struct {
	cfg     config.Config
	limiter *rate.Limiter

	authBase  string
	tokenBase string
	graphBase string
}

func NewInstagramAdapter(cfg config.Config) *InstagramAdapter {
	return &InstagramAdapter{
		cfg:       cfg,
		limiter:   newLimiter(),
		authBase:  "https://www.instagram.com/oauth/authorize",
		tokenBase: "https://api.instagram.com",
		graphBase: "https://graph.instagram.com",
	}
}

func (a *InstagramAdapter) Platform() string { return PlatformInstagram }

func (a *InstagramAdapter) RequiresPKCE() bool { return false }

func (a *InstagramAdapter) Limits() Limits {
	return Limits{
		MaxTextLength:       2200,
		MaxMediaCount:       10,
		SupportsVideo:       true,
		AllowedImageFormats: []string{"jpg", "jpeg", "png"},
		AllowedVideoFormats: []string{"mp4", "mov"},
		MaxImageSizeBytes:   8 * 1024 * 1024,
		MaxVideoSizeBytes:   100 * 1024 * 1024,
	}
}

func (a *InstagramAdapter) AuthorizationURL(state, challenge string) string {
	params := url.Values{}
	params.Add("client_id", a.cfg.InstagramClientID)
	params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
	params.Add("response_type", "code")
	params.Add("redirect_uri", a.cfg.InstagramRedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", a.authBase, params.Encode())
}

func (a *InstagramAdapter) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	short, err := a.shortLivedToken(ctx, code)
	if err != nil {
		return nil, err
	}

	long, err := a.longLivedToken(ctx, short.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
		SecondaryID:  fmt.Sprintf("%d", short.UserID),
		ExpiresAt:    time.Now().Add(time.Duration(long.ExpiresIn) * time.Second),
	}, nil
}

func (a *InstagramAdapter) shortLivedToken(ctx context.Context, code string) (*transfer.InstagramShortLivedToken, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.InstagramClientID)
	data.Set("client_secret", a.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", a.cfg.InstagramRedirectURI)
	data.Set("code", code)

	req, err := http.NewRequest("POST", a.tokenBase+"/oauth/access_token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("Instagram token endpoint returned non-200 status")
		return nil, errors.New("Instagram token endpoint returned non-200 status")
	}

	var result transfer.InstagramShortLivedToken
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &result, nil
}

func (a *InstagramAdapter) longLivedToken(ctx context.Context, shortLivedToken string) (*transfer.InstagramLongLivedToken, error) {
	endpoint := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		a.graphBase, a.cfg.InstagramClientSecret, url.QueryEscape(shortLivedToken),
	)

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("error response from Instagram: %s (status code: %d)", body, resp.StatusCode)
	}

	var result transfer.InstagramLongLivedToken
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode long-lived token response: %w", err)
	}

	return &result, nil
}

func (a *InstagramAdapter) Profile(ctx context.Context, cred *Credential) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/me?fields=id,username,name,profile_picture_url,followers_count&access_token=%s",
		a.graphBase, url.QueryEscape(cred.AccessToken))

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformInstagram, resp, "fetching profile failed")
	}

	var info transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Profile{
		AccountID:      info.UserID,
		DisplayName:    info.Name,
		Username:       info.Username,
		AvatarURL:      info.ProfilePicture,
		FollowerCount:  info.FollowersCount,
		TokenExpiresAt: cred.ExpiresAt,
	}, nil
}

// Publish creates one container per media item (a carousel parent when there
// are several) and then issues the publish call against it.
func (a *InstagramAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	if len(media) == 0 {
		return nil, &Error{Platform: PlatformInstagram, Kind: KindPayloadRejected, Message: "Instagram requires at least one media item"}
	}

	var containerID string
	if len(media) == 1 {
		id, err := a.createContainer(ctx, media[0], text, false, cred)
		if err != nil {
			return nil, err
		}
		containerID = id
	} else {
		var children []string
		for _, item := range media {
			id, err := a.createContainer(ctx, item, "", true, cred)
			if err != nil {
				return nil, err
			}
			children = append(children, id)
		}

		values := url.Values{
			"media_type":   {"CAROUSEL"},
			"caption":      {text},
			"children":     {strings.Join(children, ",")},
			"access_token": {cred.AccessToken},
		}
		id, err := a.postContainer(ctx, values)
		if err != nil {
			return nil, err
		}
		containerID = id
	}

	return a.publishContainer(ctx, containerID, cred)
}

func (a *InstagramAdapter) createContainer(ctx context.Context, item models.MediaItem, caption string, carouselItem bool, cred *Credential) (string, error) {
	values := url.Values{"access_token": {cred.AccessToken}}
	if item.MediaType == models.MediaTypeVideo {
		values.Set("media_type", "REELS")
		values.Set("video_url", item.URL)
	} else {
		values.Set("image_url", item.URL)
	}
	if caption != "" {
		values.Set("caption", caption)
	}
	if carouselItem {
		values.Set("is_carousel_item", "true")
	}

	return a.postContainer(ctx, values)
}

func (a *InstagramAdapter) postContainer(ctx context.Context, values url.Values) (string, error) {
	req, err := http.NewRequest("POST", a.graphBase+"/me/media", strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	var result transfer.InstagramContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		message := ""
		if result.Error != nil {
			message = result.Error.Message
		}
		return "", classifyStatus(PlatformInstagram, resp, message)
	}

	return result.ID, nil
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, containerID string, cred *Credential) (*Result, error) {
	values := url.Values{
		"creation_id":  {containerID},
		"access_token": {cred.AccessToken},
	}

	req, err := http.NewRequest("POST", a.graphBase+"/me/media_publish", strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var result transfer.InstagramPublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		message := ""
		if result.Error != nil {
			message = result.Error.Message
		}
		return nil, classifyStatus(PlatformInstagram, resp, message)
	}

	return &Result{Ref: result.ID}, nil
}

// Refresh extends a long-lived token before it lapses.
func (a *InstagramAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	endpoint := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		a.graphBase, url.QueryEscape(cred.AccessToken))

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformInstagram, resp, "token refresh failed")
	}

	var result transfer.InstagramLongLivedToken
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		SecondaryID:  cred.SecondaryID,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// Revoke is a no-op; Instagram has no token revocation endpoint for this
// flow, disconnect just drops the stored credential.
func (a *InstagramAdapter) Revoke(ctx context.Context, cred *Credential) error {
	return nil
}
