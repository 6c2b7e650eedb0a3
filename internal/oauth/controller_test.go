package oauth

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/platform"
)

type fakeAdapter struct {
	id          string
	pkce        bool
	exchangeErr error
	profile     platform.Profile

	gotCode     string
	gotVerifier string
}

func (a *fakeAdapter) Platform() string        { return a.id }
func (a *fakeAdapter) RequiresPKCE() bool      { return a.pkce }
func (a *fakeAdapter) Limits() platform.Limits { return platform.Limits{MaxTextLength: 100} }

func (a *fakeAdapter) AuthorizationURL(state, challenge string) string {
	params := url.Values{}
	params.Add("state", state)
	if challenge != "" {
		params.Add("code_challenge", challenge)
	}
	return "https://provider.example/authorize?" + params.Encode()
}

func (a *fakeAdapter) Exchange(ctx context.Context, code, verifier string) (*platform.Credential, error) {
	a.gotCode = code
	a.gotVerifier = verifier
	if a.exchangeErr != nil {
		return nil, a.exchangeErr
	}
	return &platform.Credential{AccessToken: "access-" + code, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (a *fakeAdapter) Profile(ctx context.Context, cred *platform.Credential) (*platform.Profile, error) {
	p := a.profile
	if p.AccountID == "" {
		p.AccountID = "acct-1"
	}
	return &p, nil
}

func (a *fakeAdapter) Publish(ctx context.Context, text string, media []models.MediaItem, cred *platform.Credential) (*platform.Result, error) {
	return nil, errors.New("not implemented")
}
func (a *fakeAdapter) Refresh(ctx context.Context, cred *platform.Credential) (*platform.Credential, error) {
	return cred, nil
}
func (a *fakeAdapter) Revoke(ctx context.Context, cred *platform.Credential) error { return nil }

type fakeAccountRepo struct {
	upserted []*models.SocialAccount
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.upserted = append(r.upserted, sa)
	return int64(len(r.upserted)), nil
}
func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) GetForPublish(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	return nil, nil
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

func testConfig() config.Config {
	return config.Config{SecretKey: "0123456789abcdef0123456789abcdef"}
}

func newTestController(adapters ...platform.Adapter) (*Controller, *fakeAccountRepo) {
	repo := &fakeAccountRepo{}
	return NewController(testConfig(), platform.NewRegistry(adapters...), repo), repo
}

func stateFromURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestConnectHappyPath(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter", pkce: true, profile: platform.Profile{
		AccountID:   "12345",
		DisplayName: "Ada",
		Username:    "ada",
	}}
	ctrl, repo := newTestController(adapter)
	ctx := context.Background()

	authURL, attempt, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	state := stateFromURL(t, authURL)
	require.NotEmpty(t, state)
	require.True(t, strings.Contains(authURL, "code_challenge="))
	require.NotEmpty(t, attempt.Verifier)

	account, err := ctrl.HandleCallback(ctx, "twitter", state, "the-code", "")
	require.NoError(t, err)
	require.NotNil(t, account)

	assert.Equal(t, "the-code", adapter.gotCode)
	assert.Equal(t, attempt.Verifier, adapter.gotVerifier)

	assert.Equal(t, int64(1), account.UserID)
	assert.Equal(t, "twitter", account.Platform)
	assert.Equal(t, "12345", account.AccountID)
	assert.Equal(t, models.AccountStatusActive, account.AccountStatus)

	// tokens in the registry are never plaintext
	require.Len(t, repo.upserted, 1)
	assert.NotEqual(t, "access-the-code", repo.upserted[0].AccessToken)
	assert.NotEmpty(t, repo.upserted[0].AccessToken)

	awaited, err := attempt.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, account, awaited)
}

func TestCallbackStateMismatch(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, repo := newTestController(adapter)
	ctx := context.Background()

	authURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	_, err = ctrl.HandleCallback(ctx, "twitter", "forged-state", "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Empty(t, repo.upserted)

	// the live attempt is untouched and still completes
	account, err := ctrl.HandleCallback(ctx, "twitter", state, "code", "")
	require.NoError(t, err)
	assert.NotNil(t, account)
}

func TestCallbackWrongPlatform(t *testing.T) {
	twitter := &fakeAdapter{id: "twitter"}
	facebook := &fakeAdapter{id: "facebook"}
	ctrl, _ := newTestController(twitter, facebook)
	ctx := context.Background()

	authURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	_, err = ctrl.HandleCallback(ctx, "facebook", state, "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestStateIsSingleUse(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, _ := newTestController(adapter)
	ctx := context.Background()

	authURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	_, err = ctrl.HandleCallback(ctx, "twitter", state, "code", "")
	require.NoError(t, err)

	_, err = ctrl.HandleCallback(ctx, "twitter", state, "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestNewAttemptSupersedesPrior(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, _ := newTestController(adapter)
	ctx := context.Background()

	firstURL, first, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	secondURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	_, err = first.Await(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)

	// the first state token is dead, the second still works
	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, firstURL), "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)

	account, err := ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, secondURL), "code", "")
	require.NoError(t, err)
	assert.NotNil(t, account)
}

func TestAttemptsForDifferentPlatformsCoexist(t *testing.T) {
	twitter := &fakeAdapter{id: "twitter"}
	facebook := &fakeAdapter{id: "facebook"}
	ctrl, _ := newTestController(twitter, facebook)
	ctx := context.Background()

	twitterURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	facebookURL, _, err := ctrl.BeginConnect(ctx, 1, "facebook")
	require.NoError(t, err)

	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, twitterURL), "code", "")
	require.NoError(t, err)

	_, err = ctrl.HandleCallback(ctx, "facebook", stateFromURL(t, facebookURL), "code", "")
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, _ := newTestController(adapter)
	ctx := context.Background()

	authURL, attempt, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	ctrl.Cancel(1, "twitter")

	_, err = attempt.Await(ctx)
	assert.ErrorIs(t, err, ErrUserCancelled)

	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, authURL), "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestAttemptTimesOut(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, _ := newTestController(adapter)
	ctrl.ttl = 20 * time.Millisecond
	ctx := context.Background()

	authURL, attempt, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	_, err = attempt.Await(ctx)
	assert.ErrorIs(t, err, ErrTimeout)

	// an expired attempt is swept when the next callback arrives
	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, authURL), "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestProviderDeniedCallback(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter"}
	ctrl, repo := newTestController(adapter)
	ctx := context.Background()

	authURL, attempt, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, authURL), "", "access_denied")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Empty(t, repo.upserted)

	_, err = attempt.Await(ctx)
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestExchangeFailure(t *testing.T) {
	adapter := &fakeAdapter{id: "twitter", exchangeErr: errors.New("invalid grant")}
	ctrl, repo := newTestController(adapter)
	ctx := context.Background()

	authURL, _, err := ctrl.BeginConnect(ctx, 1, "twitter")
	require.NoError(t, err)

	_, err = ctrl.HandleCallback(ctx, "twitter", stateFromURL(t, authURL), "code", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Empty(t, repo.upserted)
}
