package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/internal/repository"
	"postbridge/pkg/utils"
)

// Controller drives connection attempts to completion: it opens the
// authorization URL, correlates the asynchronous callback by state token,
// performs the backend-side code exchange, hydrates the profile, and writes
// the connected account into the registry.
//
// At most one attempt per (user, platform) is live; starting another rejects
// the previous one with ErrSuperseded. Attempt state is in-memory only.
type Controller struct {
	cfg      config.Config
	adapters *platform.Registry
	accounts repository.SocialAccountRepository

	mu      sync.Mutex
	byState map[string]*Attempt
	byOwner map[string]*Attempt
	ttl     time.Duration
}

func NewController(cfg config.Config, adapters *platform.Registry, accounts repository.SocialAccountRepository) *Controller {
	return &Controller{
		cfg:      cfg,
		adapters: adapters,
		accounts: accounts,
		byState:  make(map[string]*Attempt),
		byOwner:  make(map[string]*Attempt),
		ttl:      AttemptTTL,
	}
}

func ownerKey(userID int64, platformID string) string {
	return fmt.Sprintf("%d:%s", userID, platformID)
}

// BeginConnect registers a fresh attempt and returns the provider consent URL
// to open. The returned Attempt's Await settles with the connected account.
func (c *Controller) BeginConnect(ctx context.Context, userID int64, platformID string) (string, *Attempt, error) {
	adapter, ok := c.adapters.Get(platformID)
	if !ok {
		return "", nil, fmt.Errorf("unknown platform %q", platformID)
	}

	state, err := utils.GenerateRandomKey(32)
	if err != nil {
		return "", nil, err
	}

	var verifier, challenge string
	if adapter.RequiresPKCE() {
		verifier, challenge, err = utils.GeneratePKCE()
		if err != nil {
			return "", nil, err
		}
	}

	attempt := newAttempt(userID, platformID, state, verifier, c.ttl)

	c.mu.Lock()
	c.sweepLocked(time.Now())
	key := ownerKey(userID, platformID)
	if prior, ok := c.byOwner[key]; ok {
		delete(c.byState, prior.State)
		prior.resolve(nil, ErrSuperseded)
	}
	c.byOwner[key] = attempt
	c.byState[state] = attempt
	c.mu.Unlock()

	return adapter.AuthorizationURL(state, challenge), attempt, nil
}

// HandleCallback consumes the single asynchronous callback for an attempt.
// The state token must match a live, non-expired attempt for the same
// platform; anything else is treated as a forged or stale callback and
// causes no registry mutation.
func (c *Controller) HandleCallback(ctx context.Context, platformID, state, code, providerErr string) (*models.SocialAccount, error) {
	c.mu.Lock()
	c.sweepLocked(time.Now())
	attempt, ok := c.byState[state]
	if !ok || attempt.Platform != platformID {
		c.mu.Unlock()
		slog.Info("rejected authorization callback", "platform", platformID, "reason", "state mismatch")
		return nil, ErrStateMismatch
	}
	c.removeLocked(attempt)
	c.mu.Unlock()

	account, err := c.complete(ctx, attempt, code, providerErr)
	attempt.resolve(account, err)
	return account, err
}

func (c *Controller) complete(ctx context.Context, attempt *Attempt, code, providerErr string) (*models.SocialAccount, error) {
	if providerErr != "" {
		return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, providerErr)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}

	adapter, ok := c.adapters.Get(attempt.Platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", attempt.Platform)
	}

	cred, err := adapter.Exchange(ctx, code, attempt.Verifier)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	profile, err := adapter.Profile(ctx, cred)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(cred.AccessToken), []byte(c.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	encryptedRefreshToken := ""
	if cred.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(cred.RefreshToken), []byte(c.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
	}

	account := &models.SocialAccount{
		UserID:          attempt.UserID,
		Platform:        attempt.Platform,
		AccountID:       profile.AccountID,
		AccountName:     profile.DisplayName,
		AccountUsername: profile.Username,
		ProfilePicture:  profile.AvatarURL,
		FollowerCount:   profile.FollowerCount,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		SecondaryID:     cred.SecondaryID,
		TokenExpiresAt:  cred.ExpiresAt,
		AccountStatus:   models.AccountStatusActive,
		LastSyncedAt:    time.Now(),
	}

	id, err := c.accounts.Upsert(ctx, nil, account)
	if err != nil {
		return nil, err
	}
	account.ID = id

	return account, nil
}

// Cancel reports that the user closed the authorization surface before a
// callback arrived.
func (c *Controller) Cancel(userID int64, platformID string) {
	c.mu.Lock()
	attempt, ok := c.byOwner[ownerKey(userID, platformID)]
	if ok {
		c.removeLocked(attempt)
	}
	c.mu.Unlock()

	if ok {
		attempt.resolve(nil, ErrUserCancelled)
	}
}

func (c *Controller) removeLocked(attempt *Attempt) {
	delete(c.byState, attempt.State)
	key := ownerKey(attempt.UserID, attempt.Platform)
	if c.byOwner[key] == attempt {
		delete(c.byOwner, key)
	}
}

// sweepLocked discards expired attempts so stale callbacks can never match.
func (c *Controller) sweepLocked(now time.Time) {
	for state, attempt := range c.byState {
		if attempt.expired(now) {
			delete(c.byState, state)
			key := ownerKey(attempt.UserID, attempt.Platform)
			if c.byOwner[key] == attempt {
				delete(c.byOwner, key)
			}
			attempt.resolve(nil, ErrTimeout)
		}
	}
}
