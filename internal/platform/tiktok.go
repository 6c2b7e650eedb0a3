package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const PlatformTiktok = "tiktok"

const tiktokScopes = "user.info.basic,user.info.profile,user.info.stats,video.publish,video.upload"

// TiktokAdapter publishes via the direct-post flow; media is referenced by
// URL (PULL_FROM_URL) so staged objects must be publicly reachable.
type TiktokAdapter struct {
	cfg     config.Config
	limiter *rate.Limiter

	authBase   string
	apiBase    string
	revokeBase string
}

func NewTiktokAdapter(cfg config.Config) *TiktokAdapter {
	return &TiktokAdapter{
		cfg:        cfg,
		limiter:    newLimiter(),
		authBase:   "https://www.tiktok.com/v2/auth/authorize",
		apiBase:    "https://open.tiktokapis.com/v2",
		revokeBase: "https://open-api.tiktok.com",
	}
}

func (a *TiktokAdapter) Platform() string { return PlatformTiktok }

func (a *TiktokAdapter) RequiresPKCE() bool { return false }

func (a *TiktokAdapter) Limits() Limits {
	return Limits{
		MaxTextLength:       2200,
		MaxMediaCount:       10,
		SupportsVideo:       true,
		AllowedImageFormats: []string{"jpg", "jpeg", "webp"},
		AllowedVideoFormats: []string{"mp4", "mov"},
		MaxImageSizeBytes:   20 * 1024 * 1024,
		MaxVideoSizeBytes:   512 * 1024 * 1024,
	}
}

func (a *TiktokAdapter) AuthorizationURL(state, challenge string) string {
	params := url.Values{}
	params.Add("client_key", a.cfg.TiktokClientKey)
	params.Add("scope", tiktokScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", a.cfg.TiktokRedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", a.authBase, params.Encode())
}

func (a *TiktokAdapter) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	data := url.Values{}
	data.Add("client_key", a.cfg.TiktokClientKey)
	data.Add("client_secret", a.cfg.TiktokClientSecret)
	data.Add("code", code)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", a.cfg.TiktokRedirectURI)

	tokenResponse, err := a.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		SecondaryID:  tokenResponse.OpenID,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (a *TiktokAdapter) tokenRequest(ctx context.Context, data url.Values) (*transfer.TiktokTokenResponse, error) {
	req, err := http.NewRequest("POST", a.apiBase+"/oauth/token/", strings.NewReader(data.Encode()))
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
		slog.Info("TikTok token endpoint returned non-200 status")
		return nil, errors.New("TikTok token endpoint returned non-200 status")
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResponse, nil
}

func (a *TiktokAdapter) Profile(ctx context.Context, cred *Credential) (*Profile, error) {
	endpoint := a.apiBase + "/user/info/?fields=open_id,avatar_url,display_name,username,follower_count"

	req, err := http.NewRequest("GET", endpoint, nil)
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

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformTiktok, resp, "fetching user info failed")
	}

	var result transfer.TikTokResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Profile{
		AccountID:      result.Data.User.OpenID,
		DisplayName:    result.Data.User.DisplayName,
		Username:       result.Data.User.Username,
		AvatarURL:      result.Data.User.AvatarURL,
		FollowerCount:  result.Data.User.FollowerCount,
		TokenExpiresAt: cred.ExpiresAt,
	}, nil
}

func (a *TiktokAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	if len(media) == 0 {
		return nil, &Error{Platform: PlatformTiktok, Kind: KindPayloadRejected, Message: "TikTok requires at least one media item"}
	}

	if media[0].MediaType == models.MediaTypeVideo {
		return a.publishVideo(ctx, text, media[0], cred)
	}
	return a.publishPhotos(ctx, text, media, cred)
}

func (a *TiktokAdapter) publishVideo(ctx context.Context, text string, item models.MediaItem, cred *Credential) (*Result, error) {
	uploadRequest := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 text,
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: item.URL,
		},
	}

	return a.publishInit(ctx, a.apiBase+"/post/publish/video/init/", uploadRequest, cred)
}

func (a *TiktokAdapter) publishPhotos(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	photos := make([]string, 0, len(media))
	for _, item := range media {
		photos = append(photos, item.URL)
	}

	uploadRequest := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Title:        text,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     photos,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	return a.publishInit(ctx, a.apiBase+"/post/publish/content/init/", uploadRequest, cred)
}

func (a *TiktokAdapter) publishInit(ctx context.Context, endpoint string, payload interface{}, cred *Credential) (*Result, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", endpoint, bytes.NewBuffer(jsonData))
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

	var result transfer.TikTokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(PlatformTiktok, resp, result.Error.Message)
	}

	return &Result{Ref: result.Data.PublishID}, nil
}

func (a *TiktokAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	data := url.Values{}
	data.Set("client_key", a.cfg.TiktokClientKey)
	data.Set("client_secret", a.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)

	tokenResponse, err := a.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		SecondaryID:  cred.SecondaryID,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (a *TiktokAdapter) Revoke(ctx context.Context, cred *Credential) error {
	params := url.Values{}
	params.Add("open_id", cred.SecondaryID)
	params.Add("access_token", cred.AccessToken)

	req, err := http.NewRequest("POST", a.revokeBase+"/oauth/revoke/", strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result transfer.TiktokRevokeData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token: %s", result.Description)
	}
	return nil
}
