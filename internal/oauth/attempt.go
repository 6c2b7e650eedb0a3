package oauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"postbridge/internal/models"
)

var (
	ErrStateMismatch  = errors.New("callback does not match a live authorization attempt")
	ErrTimeout        = errors.New("authorization attempt timed out")
	ErrUserCancelled  = errors.New("authorization cancelled by user")
	ErrSuperseded     = errors.New("authorization attempt superseded by a newer one")
	ErrExchangeFailed = errors.New("provider rejected the authorization code")
)

// AttemptTTL bounds how long a callback may arrive after the authorization
// surface was opened.
const AttemptTTL = 5 * time.Minute

// Attempt is one in-flight connection dance. It lives only between the
// authorization redirect and the exchange (or abandonment) and is always
// discarded afterward; the state token is single-use.
type Attempt struct {
	UserID    int64
	Platform  string
	State     string
	Verifier  string
	CreatedAt time.Time
	ExpiresAt time.Time

	once sync.Once
	done chan attemptResult
}

type attemptResult struct {
	account *models.SocialAccount
	err     error
}

func newAttempt(userID int64, platform, state, verifier string, ttl time.Duration) *Attempt {
	now := time.Now()
	return &Attempt{
		UserID:    userID,
		Platform:  platform,
		State:     state,
		Verifier:  verifier,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		done:      make(chan attemptResult, 1),
	}
}

// resolve settles the attempt exactly once; later calls are ignored.
func (a *Attempt) resolve(account *models.SocialAccount, err error) {
	a.once.Do(func() {
		a.done <- attemptResult{account: account, err: err}
	})
}

func (a *Attempt) expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Await blocks until the attempt settles: a processed callback, cancellation,
// supersession, or the attempt deadline.
func (a *Attempt) Await(ctx context.Context) (*models.SocialAccount, error) {
	deadline := time.NewTimer(time.Until(a.ExpiresAt))
	defer deadline.Stop()

	select {
	case res := <-a.done:
		return res.account, res.err
	case <-deadline.C:
		a.resolve(nil, ErrTimeout)
		res := <-a.done
		return res.account, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
