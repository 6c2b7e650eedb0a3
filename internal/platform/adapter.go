package platform

import (
	"context"
	"time"

	"postbridge/internal/models"
)

// Limits declares what one provider accepts in a single post.
type Limits struct {
	MaxTextLength       int
	MaxMediaCount       int
	SupportsVideo       bool
	AllowedImageFormats []string
	AllowedVideoFormats []string
	MaxImageSizeBytes   int64
	MaxVideoSizeBytes   int64
}

func (l Limits) AllowsImageFormat(format string) bool {
	return contains(l.AllowedImageFormats, format)
}

func (l Limits) AllowsVideoFormat(format string) bool {
	return contains(l.AllowedVideoFormats, format)
}

// Credential is the provider-shaped token material for one account: a bearer
// token, optionally a refresh token, and for providers that address resources
// by a second identifier (Facebook page, TikTok open id) that identifier.
type Credential struct {
	AccessToken  string
	RefreshToken string
	SecondaryID  string
	ExpiresAt    time.Time
}

// Profile is the provider identity hydrated right after an exchange.
type Profile struct {
	AccountID      string
	DisplayName    string
	Username       string
	AvatarURL      string
	FollowerCount  int64
	TokenExpiresAt time.Time
}

// Result is a successful publish: the provider's post/publish reference.
type Result struct {
	Ref string
}

// Adapter is one provider. Publish performs any provider-internal staging
// (media uploads, containers) itself and reports a single Result or a typed
// *Error; the orchestrator never sees provider-specific steps.
type Adapter interface {
	Platform() string
	Limits() Limits
	RequiresPKCE() bool
	AuthorizationURL(state, challenge string) string
	Exchange(ctx context.Context, code, verifier string) (*Credential, error)
	Profile(ctx context.Context, cred *Credential) (*Profile, error)
	Publish(ctx context.Context, text string, media []models.MediaItem, cred *Credential) (*Result, error)
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
	Revoke(ctx context.Context, cred *Credential) error
}

// Registry holds the adapter set keyed by platform id.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
		r.order = append(r.order, a.Platform())
	}
	return r
}

func (r *Registry) Get(platformID string) (Adapter, bool) {
	a, ok := r.adapters[platformID]
	return a, ok
}

func (r *Registry) Platforms() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Intersect reduces the limits of several adapters to the tightest value on
// every axis. Formats intersect; a video is only allowed if every adapter
// supports video.
func Intersect(adapters []Adapter) Limits {
	if len(adapters) == 0 {
		return Limits{}
	}

	out := adapters[0].Limits()
	for _, a := range adapters[1:] {
		l := a.Limits()
		if l.MaxTextLength < out.MaxTextLength {
			out.MaxTextLength = l.MaxTextLength
		}
		if l.MaxMediaCount < out.MaxMediaCount {
			out.MaxMediaCount = l.MaxMediaCount
		}
		if !l.SupportsVideo {
			out.SupportsVideo = false
		}
		if l.MaxImageSizeBytes < out.MaxImageSizeBytes {
			out.MaxImageSizeBytes = l.MaxImageSizeBytes
		}
		if l.MaxVideoSizeBytes < out.MaxVideoSizeBytes {
			out.MaxVideoSizeBytes = l.MaxVideoSizeBytes
		}
		out.AllowedImageFormats = intersect(out.AllowedImageFormats, l.AllowedImageFormats)
		out.AllowedVideoFormats = intersect(out.AllowedVideoFormats, l.AllowedVideoFormats)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	var out []string
	for _, s := range a {
		if contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
