package publish

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/pkg/utils"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeAdapter struct {
	id      string
	limits  platform.Limits
	mu      sync.Mutex
	calls   int
	publish func(call int) (*platform.Result, error)
}

func (a *fakeAdapter) Platform() string   { return a.id }
func (a *fakeAdapter) RequiresPKCE() bool { return false }
func (a *fakeAdapter) Limits() platform.Limits {
	if a.limits.MaxTextLength == 0 {
		return platform.Limits{
			MaxTextLength:       5000,
			MaxMediaCount:       10,
			SupportsVideo:       true,
			AllowedImageFormats: []string{"jpg", "png"},
			AllowedVideoFormats: []string{"mp4"},
		}
	}
	return a.limits
}
func (a *fakeAdapter) AuthorizationURL(state, challenge string) string { return "" }
func (a *fakeAdapter) Exchange(ctx context.Context, code, verifier string) (*platform.Credential, error) {
	return nil, errors.New("not implemented")
}
func (a *fakeAdapter) Profile(ctx context.Context, cred *platform.Credential) (*platform.Profile, error) {
	return nil, errors.New("not implemented")
}
func (a *fakeAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *platform.Credential) (*platform.Result, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()
	return a.publish(call)
}
func (a *fakeAdapter) Refresh(ctx context.Context, cred *platform.Credential) (*platform.Credential, error) {
	return cred, nil
}
func (a *fakeAdapter) Revoke(ctx context.Context, cred *platform.Credential) error { return nil }

type fakeAccountRepo struct {
	accounts map[string]*models.SocialAccount
}

func newFakeAccountRepo(t *testing.T, platforms ...string) *fakeAccountRepo {
	t.Helper()
	repo := &fakeAccountRepo{accounts: make(map[string]*models.SocialAccount)}
	for i, p := range platforms {
		enc, err := utils.Encrypt([]byte("token-"+p), testSecret)
		require.NoError(t, err)
		repo.accounts[p] = &models.SocialAccount{
			ID:          int64(i + 1),
			UserID:      1,
			Platform:    p,
			AccessToken: enc,
		}
	}
	return repo
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) GetForPublish(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	return r.accounts[platform], nil
}
func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return false, nil
}
func (r *fakeAccountRepo) SetToken(ctx context.Context, id int64, sa *models.SocialAccount) error {
	return nil
}
func (r *fakeAccountRepo) SetStatus(ctx context.Context, id int64, status string) error { return nil }
func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error                   { return nil }

func newTestOrchestrator(t *testing.T, adapters ...platform.Adapter) (*Orchestrator, *[]time.Duration) {
	t.Helper()

	ids := make([]string, 0, len(adapters))
	for _, a := range adapters {
		ids = append(ids, a.Platform())
	}

	o := NewOrchestrator(platform.NewRegistry(adapters...), newFakeAccountRepo(t, ids...), testSecret)

	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	o.jitter = time.Nanosecond
	return o, &slept
}

func TestPublishOutcomesKeepRequestOrder(t *testing.T) {
	ok := func(call int) (*platform.Result, error) { return &platform.Result{Ref: "ref"}, nil }
	fail := func(call int) (*platform.Result, error) {
		return nil, &platform.Error{Platform: "b", Kind: platform.KindPayloadRejected, Message: "nope"}
	}

	o, _ := newTestOrchestrator(t,
		&fakeAdapter{id: "a", publish: ok},
		&fakeAdapter{id: "b", publish: fail},
		&fakeAdapter{id: "c", publish: ok},
	)

	outcomes, err := o.Publish(context.Background(), &Request{
		UserID:    1,
		Text:      "hello",
		Platforms: []string{"c", "b", "a"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "c", outcomes[0].Platform)
	assert.Equal(t, "b", outcomes[1].Platform)
	assert.Equal(t, "a", outcomes[2].Platform)

	assert.Equal(t, StatusPosted, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, StatusPosted, outcomes[2].Status)

	assert.Equal(t, platform.KindPayloadRejected, outcomes[1].ErrorKind)
	assert.False(t, outcomes[1].Retryable)
}

func TestPublishMissingCredential(t *testing.T) {
	ok := func(call int) (*platform.Result, error) { return &platform.Result{Ref: "ref"}, nil }

	a := &fakeAdapter{id: "a", publish: ok}
	b := &fakeAdapter{id: "b", publish: ok}

	// only "a" has a connected account
	o := NewOrchestrator(platform.NewRegistry(a, b), newFakeAccountRepo(t, "a"), testSecret)

	outcomes, err := o.Publish(context.Background(), &Request{
		UserID:    1,
		Text:      "hello",
		Platforms: []string{"a", "b"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPosted, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, platform.KindMissingCredential, outcomes[1].ErrorKind)
	assert.Equal(t, 0, b.calls)
}

func TestPublishSkipsAccountsNeedingReauth(t *testing.T) {
	a := &fakeAdapter{id: "a"}
	a.publish = func(call int) (*platform.Result, error) { return &platform.Result{Ref: "ref"}, nil }

	repo := newFakeAccountRepo(t, "a")
	repo.accounts["a"].AccountStatus = models.AccountStatusNeedsReauth

	o := NewOrchestrator(platform.NewRegistry(a), repo, testSecret)

	outcomes, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, platform.KindMissingCredential, outcomes[0].ErrorKind)
	assert.Equal(t, 0, a.calls)
}

func TestPublishFansOutConcurrently(t *testing.T) {
	bDone := make(chan struct{})

	// "a" stays blocked until "b" has published. If dispatch were
	// sequential in request order this would never finish.
	a := &fakeAdapter{id: "a"}
	a.publish = func(call int) (*platform.Result, error) {
		select {
		case <-bDone:
			return &platform.Result{Ref: "ref-a"}, nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("still waiting on b")
		}
	}
	b := &fakeAdapter{id: "b"}
	b.publish = func(call int) (*platform.Result, error) {
		close(bDone)
		return &platform.Result{Ref: "ref-b"}, nil
	}

	o, _ := newTestOrchestrator(t, a, b)

	outcomes, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, StatusPosted, outcomes[0].Status)
	assert.Equal(t, StatusPosted, outcomes[1].Status)
}

func TestPublishRetriesRateLimitsOnly(t *testing.T) {
	rateLimited := &fakeAdapter{id: "a"}
	rateLimited.publish = func(call int) (*platform.Result, error) {
		if call < 3 {
			return nil, &platform.Error{Platform: "a", Kind: platform.KindRateLimited, Message: "slow down"}
		}
		return &platform.Result{Ref: "ref"}, nil
	}

	o, slept := newTestOrchestrator(t, rateLimited)

	outcomes, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, StatusPosted, outcomes[0].Status)
	assert.Equal(t, 3, rateLimited.calls)
	require.Len(t, *slept, 2)

	// exponential: 1s then 2s, plus jitter
	assert.GreaterOrEqual(t, (*slept)[0], time.Second)
	assert.Less(t, (*slept)[0], time.Second+time.Millisecond)
	assert.GreaterOrEqual(t, (*slept)[1], 2*time.Second)
}

func TestPublishRetryHonorsRetryAfter(t *testing.T) {
	a := &fakeAdapter{id: "a"}
	a.publish = func(call int) (*platform.Result, error) {
		if call == 1 {
			return nil, &platform.Error{
				Platform:   "a",
				Kind:       platform.KindRateLimited,
				Message:    "slow down",
				RetryAfter: 5 * time.Second,
			}
		}
		return &platform.Result{Ref: "ref"}, nil
	}

	o, slept := newTestOrchestrator(t, a)

	_, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a"}})
	require.NoError(t, err)

	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], 5*time.Second)
}

func TestPublishGivesUpAfterRetryBudget(t *testing.T) {
	a := &fakeAdapter{id: "a"}
	a.publish = func(call int) (*platform.Result, error) {
		return nil, &platform.Error{Platform: "a", Kind: platform.KindRateLimited, Message: "slow down"}
	}

	o, _ := newTestOrchestrator(t, a)

	outcomes, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.True(t, outcomes[0].Retryable)
	// first attempt plus three retries
	assert.Equal(t, 4, a.calls)
}

func TestPublishDoesNotRetryExpiredAuth(t *testing.T) {
	a := &fakeAdapter{id: "a"}
	a.publish = func(call int) (*platform.Result, error) {
		return nil, &platform.Error{Platform: "a", Kind: platform.KindAuthExpired, Message: "token expired"}
	}

	o, slept := newTestOrchestrator(t, a)

	outcomes, err := o.Publish(context.Background(), &Request{UserID: 1, Text: "hi", Platforms: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, platform.KindAuthExpired, outcomes[0].ErrorKind)
	assert.Equal(t, 1, a.calls)
	assert.Empty(t, *slept)
}

func TestValidate(t *testing.T) {
	ok := func(call int) (*platform.Result, error) { return &platform.Result{Ref: "ref"}, nil }

	short := &fakeAdapter{
		id:      "short",
		publish: ok,
		limits: platform.Limits{
			MaxTextLength:       10,
			MaxMediaCount:       1,
			SupportsVideo:       false,
			AllowedImageFormats: []string{"jpg"},
			MaxImageSizeBytes:   1024,
		},
	}

	o, _ := newTestOrchestrator(t, &fakeAdapter{id: "a", publish: ok}, short)

	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{
			name:    "no platforms",
			req:     &Request{UserID: 1, Text: "hi"},
			wantErr: ErrNoTargets,
		},
		{
			name:    "empty post",
			req:     &Request{UserID: 1, Text: "   ", Platforms: []string{"a"}},
			wantErr: ErrNothingToPublish,
		},
		{
			name: "valid",
			req:  &Request{UserID: 1, Text: "hi", Platforms: []string{"a", "short"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := o.Validate(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("text over the tightest limit", func(t *testing.T) {
		err := o.Validate(&Request{UserID: 1, Text: "this is longer than ten characters", Platforms: []string{"a", "short"}})
		var unsupported *UnsupportedMediaError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, []string{"short"}, unsupported.Platforms)
	})

	t.Run("image over the size limit", func(t *testing.T) {
		err := o.Validate(&Request{
			UserID:    1,
			Media:     []models.MediaItem{{MediaType: models.MediaTypeImage, Format: "jpg", SizeBytes: 10 * 1024 * 1024, URL: "https://cdn.example/p.jpg"}},
			Platforms: []string{"short"},
		})
		var unsupported *UnsupportedMediaError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, []string{"short"}, unsupported.Platforms)
	})

	t.Run("image of unknown size passes", func(t *testing.T) {
		err := o.Validate(&Request{
			UserID:    1,
			Media:     []models.MediaItem{{MediaType: models.MediaTypeImage, Format: "jpg", URL: "https://cdn.example/p.jpg"}},
			Platforms: []string{"short"},
		})
		assert.NoError(t, err)
	})

	t.Run("video for a platform without video", func(t *testing.T) {
		err := o.Validate(&Request{
			UserID:    1,
			Media:     []models.MediaItem{{MediaType: models.MediaTypeVideo, Format: "mp4", URL: "https://cdn.example/v.mp4"}},
			Platforms: []string{"short"},
		})
		var unsupported *UnsupportedMediaError
		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("unknown platform", func(t *testing.T) {
		err := o.Validate(&Request{UserID: 1, Text: "hi", Platforms: []string{"nope"}})
		assert.Error(t, err)
	})
}
