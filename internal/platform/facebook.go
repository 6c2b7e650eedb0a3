package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/transfer"
)

const PlatformFacebook = "facebook"

// FacebookAdapter posts to a Facebook Page. The stored credential is a pair:
// the page access token plus the page id it belongs to.
type FacebookAdapter struct {
	cfg     config.Config
	limiter *rate.Limiter

	authBase  string
	graphBase string
}

func NewFacebookAdapter(cfg config.Config) *FacebookAdapter {
	return &FacebookAdapter{
		cfg:       cfg,
		limiter:   newLimiter(),
		authBase:  "https://www.facebook.com/v20.0/dialog/oauth",
		graphBase: "https://graph.facebook.com/v20.0",
	}
}

func (a *FacebookAdapter) Platform() string { return PlatformFacebook }

func (a *FacebookAdapter) RequiresPKCE() bool { return false }

func (a *FacebookAdapter) Limits() Limits {
	return Limits{
		MaxTextLength:       5000,
		MaxMediaCount:       10,
		SupportsVideo:       true,
		AllowedImageFormats: []string{"jpg", "jpeg", "png", "gif"},
		AllowedVideoFormats: []string{"mp4", "mov"},
		MaxImageSizeBytes:   10 * 1024 * 1024,
		MaxVideoSizeBytes:   1024 * 1024 * 1024,
	}
}

func (a *FacebookAdapter) AuthorizationURL(state, challenge string) string {
	params := url.Values{}
	params.Add("client_id", a.cfg.FacebookAppID)
	params.Add("redirect_uri", a.cfg.FacebookRedirectURI)
	params.Add("response_type", "code")
	params.Add("scope", "pages_show_list,pages_manage_posts,pages_read_engagement")
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", a.authBase, params.Encode())
}

// Exchange swaps the code for a user token, then picks the first managed
// page and keeps its page token + page id as the credential.
func (a *FacebookAdapter) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	params := url.Values{}
	params.Set("client_id", a.cfg.FacebookAppID)
	params.Set("client_secret", a.cfg.FacebookAppSecret)
	params.Set("redirect_uri", a.cfg.FacebookRedirectURI)
	params.Set("code", code)

	req, err := http.NewRequest("GET", a.graphBase+"/oauth/access_token?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("Facebook token endpoint returned non-200 status")
		return nil, errors.New("Facebook token endpoint returned non-200 status")
	}

	var tokenResponse transfer.FacebookTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	page, err := a.firstPage(ctx, tokenResponse.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken: page.AccessToken,
		SecondaryID: page.ID,
	}, nil
}

func (a *FacebookAdapter) firstPage(ctx context.Context, userToken string) (*transfer.FacebookPage, error) {
	req, err := http.NewRequest("GET", a.graphBase+"/me/accounts?access_token="+url.QueryEscape(userToken), nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(ctx, a.limiter, req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var pages transfer.FacebookPagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if len(pages.Data) == 0 {
		return nil, errors.New("no Facebook page available on this account")
	}
	return &pages.Data[0], nil
}

func (a *FacebookAdapter) Profile(ctx context.Context, cred *Credential) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=id,name,username,followers_count,picture&access_token=%s",
		a.graphBase, cred.SecondaryID, url.QueryEscape(cred.AccessToken))

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
		return nil, classifyStatus(PlatformFacebook, resp, "fetching page info failed")
	}

	var info transfer.FacebookPageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Profile{
		AccountID:     info.ID,
		DisplayName:   info.Name,
		Username:      info.Username,
		AvatarURL:     info.Picture.Data.URL,
		FollowerCount: info.FollowersCount,
	}, nil
}

// Publish posts text to the page feed, a single image to /photos, and
// multiple images as unpublished photos attached to one feed post.
func (a *FacebookAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	switch {
	case len(media) == 0:
		return a.postForm(ctx, fmt.Sprintf("%s/%s/feed", a.graphBase, cred.SecondaryID), url.Values{
			"message":      {text},
			"access_token": {cred.AccessToken},
		})

	case len(media) == 1 && media[0].MediaType == models.MediaTypeVideo:
		return a.postForm(ctx, fmt.Sprintf("%s/%s/videos", a.graphBase, cred.SecondaryID), url.Values{
			"file_url":     {media[0].URL},
			"description":  {text},
			"access_token": {cred.AccessToken},
		})

	case len(media) == 1:
		return a.postForm(ctx, fmt.Sprintf("%s/%s/photos", a.graphBase, cred.SecondaryID), url.Values{
			"url":          {media[0].URL},
			"caption":      {text},
			"access_token": {cred.AccessToken},
		})

	default:
		return a.publishAlbum(ctx, text, media, cred)
	}
}

func (a *FacebookAdapter) publishAlbum(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error) {
	// attached_media on /feed only takes photo fbids
	for _, item := range media {
		if item.MediaType == models.MediaTypeVideo {
			return nil, &Error{
				Platform: PlatformFacebook,
				Kind:     KindPayloadRejected,
				Message:  "a multi-item Facebook post can only contain photos",
			}
		}
	}

	values := url.Values{
		"message":      {text},
		"access_token": {cred.AccessToken},
	}

	for i, item := range media {
		result, err := a.postForm(ctx, fmt.Sprintf("%s/%s/photos", a.graphBase, cred.SecondaryID), url.Values{
			"url":          {item.URL},
			"published":    {"false"},
			"access_token": {cred.AccessToken},
		})
		if err != nil {
			return nil, err
		}
		values.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, result.Ref))
	}

	return a.postForm(ctx, fmt.Sprintf("%s/%s/feed", a.graphBase, cred.SecondaryID), values)
}

func (a *FacebookAdapter) postForm(ctx context.Context, endpoint string, values url.Values) (*Result, error) {
	req, err := http.NewRequest("POST", endpoint, strings.NewReader(values.Encode()))
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

	var result transfer.FacebookPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		message := ""
		if result.Error != nil {
			message = result.Error.Message
		}
		return nil, classifyStatus(PlatformFacebook, resp, message)
	}

	ref := result.PostID
	if ref == "" {
		ref = result.ID
	}
	return &Result{Ref: ref}, nil
}

// Refresh is a no-op: page tokens issued against a long-lived user token do
// not expire on a fixed schedule.
func (a *FacebookAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	return cred, nil
}

func (a *FacebookAdapter) Revoke(ctx context.Context, cred *Credential) error {
	endpoint := fmt.Sprintf("%s/%s/permissions?access_token=%s", a.graphBase, cred.SecondaryID, url.QueryEscape(cred.AccessToken))

	req, err := http.NewRequest("DELETE", endpoint, nil)
	if err != nil {
		return err
	}

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
