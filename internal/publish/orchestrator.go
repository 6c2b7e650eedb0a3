package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/internal/repository"
	"postbridge/pkg/utils"
)

var (
	ErrNoTargets        = errors.New("no platforms selected")
	ErrNothingToPublish = errors.New("post has no text and no media")
)

// UnsupportedMediaError names the platforms whose limits reject the payload.
type UnsupportedMediaError struct {
	Platforms []string
	Reason    string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("%s: %s", strings.Join(e.Platforms, ", "), e.Reason)
}

const (
	StatusPosted = "posted"
	StatusFailed = "failed"
)

// Request is one publish: the same text and media sent to every selected
// platform for this user.
type Request struct {
	UserID    int64
	Text      string
	Media     []models.MediaItem
	Platforms []string
}

// Outcome is the per-platform result. The slice returned by Publish always
// has one entry per requested platform, in request order.
type Outcome struct {
	Platform    string             `json:"platform"`
	Status      string             `json:"status"`
	ProviderRef string             `json:"provider_ref,omitempty"`
	Error       string             `json:"error,omitempty"`
	ErrorKind   platform.ErrorKind `json:"error_kind,omitempty"`
	Retryable   bool               `json:"retryable,omitempty"`
}

// Orchestrator fans a validated request out to every selected platform
// concurrently. One platform failing never aborts the others; failures come
// back as Outcomes, never as an error from Publish.
type Orchestrator struct {
	registry *platform.Registry
	accounts repository.SocialAccountRepository
	secret   []byte

	retries   int
	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(registry *platform.Registry, accounts repository.SocialAccountRepository, secret []byte) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		accounts:  accounts,
		secret:    secret,
		retries:   3,
		baseDelay: time.Second,
		maxDelay:  8 * time.Second,
		jitter:    300 * time.Millisecond,
		sleep:     sleepContext,
	}
}

// Validate runs the preflight checks without touching any provider. It is
// called both before accepting a request and again inside Publish, because
// the tightest limits change with the platform selection.
func (o *Orchestrator) Validate(req *Request) error {
	if len(req.Platforms) == 0 {
		return ErrNoTargets
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Media) == 0 {
		return ErrNothingToPublish
	}

	for _, id := range req.Platforms {
		adapter, ok := o.registry.Get(id)
		if !ok {
			return fmt.Errorf("unknown platform %q", id)
		}

		limits := adapter.Limits()
		if over := overLimit(limits, req); over != "" {
			return &UnsupportedMediaError{Platforms: []string{id}, Reason: over}
		}
	}
	return nil
}

// Publish preflights the request, then posts to every platform at once.
// The returned slice is ordered like req.Platforms.
func (o *Orchestrator) Publish(ctx context.Context, req *Request) ([]Outcome, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(req.Platforms))

	var wg sync.WaitGroup
	for i, id := range req.Platforms {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = o.publishOne(ctx, req, id)
		}(i, id)
	}
	wg.Wait()

	return outcomes, nil
}

func (o *Orchestrator) publishOne(ctx context.Context, req *Request, platformID string) Outcome {
	adapter, _ := o.registry.Get(platformID)

	cred, perr := o.credential(ctx, req.UserID, platformID)
	if perr != nil {
		return failure(platformID, perr)
	}

	result, perr := o.attempt(ctx, adapter, req, cred)
	if perr != nil {
		slog.Info("publish failed", "platform", platformID, "kind", perr.Kind, "error", perr.Message)
		return failure(platformID, perr)
	}

	return Outcome{Platform: platformID, Status: StatusPosted, ProviderRef: result.Ref}
}

// attempt runs the provider call with retries. Only rate limits are retried:
// an expired token or a rejected payload will not get better by waiting.
func (o *Orchestrator) attempt(ctx context.Context, adapter platform.Adapter, req *Request, cred *platform.Credential) (*platform.Result, *platform.Error) {
	var last *platform.Error

	for attempt := 0; ; attempt++ {
		result, err := adapter.Publish(ctx, req.Text, req.Media, cred)
		if err == nil {
			return result, nil
		}

		last = platform.AsError(adapter.Platform(), err)
		if !last.Retryable() || attempt >= o.retries {
			return nil, last
		}

		wait := o.baseDelay << attempt
		if wait > o.maxDelay {
			wait = o.maxDelay
		}
		if last.RetryAfter > wait {
			wait = last.RetryAfter
		}
		wait += time.Duration(rand.Int63n(int64(o.jitter)))

		if err := o.sleep(ctx, wait); err != nil {
			return nil, last
		}
	}
}

func (o *Orchestrator) credential(ctx context.Context, userID int64, platformID string) (*platform.Credential, *platform.Error) {
	account, err := o.accounts.GetForPublish(ctx, userID, platformID)
	if err != nil {
		return nil, &platform.Error{Platform: platformID, Kind: platform.KindUnknown, Message: err.Error()}
	}
	if account == nil {
		return nil, &platform.Error{
			Platform: platformID,
			Kind:     platform.KindMissingCredential,
			Message:  "no connected account for this platform",
		}
	}
	if account.AccountStatus == models.AccountStatusNeedsReauth {
		return nil, &platform.Error{
			Platform: platformID,
			Kind:     platform.KindMissingCredential,
			Message:  "account needs to be reconnected",
		}
	}

	accessToken, err := utils.Decrypt(account.AccessToken, o.secret)
	if err != nil {
		return nil, &platform.Error{Platform: platformID, Kind: platform.KindMissingCredential, Message: "stored credential is unreadable"}
	}

	var refreshToken string
	if account.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(account.RefreshToken, o.secret)
		if err != nil {
			return nil, &platform.Error{Platform: platformID, Kind: platform.KindMissingCredential, Message: "stored credential is unreadable"}
		}
	}

	return &platform.Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SecondaryID:  account.SecondaryID,
		ExpiresAt:    account.TokenExpiresAt,
	}, nil
}

func failure(platformID string, perr *platform.Error) Outcome {
	return Outcome{
		Platform:  platformID,
		Status:    StatusFailed,
		Error:     perr.Message,
		ErrorKind: perr.Kind,
		Retryable: perr.Retryable(),
	}
}

func overLimit(limits platform.Limits, req *Request) string {
	if limits.MaxTextLength > 0 && len([]rune(req.Text)) > limits.MaxTextLength {
		return fmt.Sprintf("text exceeds the %d character limit", limits.MaxTextLength)
	}
	if limits.MaxMediaCount > 0 && len(req.Media) > limits.MaxMediaCount {
		return fmt.Sprintf("more than %d media items", limits.MaxMediaCount)
	}

	for _, item := range req.Media {
		switch item.MediaType {
		case models.MediaTypeImage:
			if !limits.AllowsImageFormat(item.Format) {
				return fmt.Sprintf("image format %s is not supported", item.Format)
			}
			if limits.MaxImageSizeBytes > 0 && item.SizeBytes > limits.MaxImageSizeBytes {
				return fmt.Sprintf("image exceeds the %d byte limit", limits.MaxImageSizeBytes)
			}
		case models.MediaTypeVideo:
			if !limits.SupportsVideo {
				return "video is not supported"
			}
			if !limits.AllowsVideoFormat(item.Format) {
				return fmt.Sprintf("video format %s is not supported", item.Format)
			}
			if limits.MaxVideoSizeBytes > 0 && item.SizeBytes > limits.MaxVideoSizeBytes {
				return fmt.Sprintf("video exceeds the %d byte limit", limits.MaxVideoSizeBytes)
			}
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
