package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/internal/repository"
	"postbridge/pkg/utils"
)

type TokenRefreshJob struct {
	cfg      *config.Config
	sr       repository.SocialAccountRepository
	adapters *platform.Registry
}

func NewTokenRefreshJob(cfg *config.Config, sr repository.SocialAccountRepository, adapters *platform.Registry) *TokenRefreshJob {
	return &TokenRefreshJob{
		cfg:      cfg,
		sr:       sr,
		adapters: adapters,
	}
}

// RefreshTokens walks accounts whose tokens expire within the next half
// hour and refreshes them through their adapter. An account whose refresh
// is refused gets flagged so the UI can prompt for reconnection.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			c.refreshOne(ctx, acc)
		}(acc)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) refreshOne(ctx context.Context, acc *models.SocialAccount) {
	adapter, ok := c.adapters.Get(acc.Platform)
	if !ok {
		return
	}

	secret := []byte(c.cfg.SecretKey)

	accessToken, err := utils.Decrypt(acc.AccessToken, secret)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var refreshToken string
	if acc.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(acc.RefreshToken, secret)
		if err != nil {
			slog.Info(err.Error())
			return
		}
	}

	cred := &platform.Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SecondaryID:  acc.SecondaryID,
		ExpiresAt:    acc.TokenExpiresAt,
	}

	renewed, err := adapter.Refresh(ctx, cred)
	if err != nil {
		slog.Info("unable to refresh token", "platform", acc.Platform, "account", acc.ID, "error", err.Error())
		perr := platform.AsError(acc.Platform, err)
		if perr.Kind == platform.KindAuthExpired {
			if err := c.sr.SetStatus(ctx, acc.ID, models.AccountStatusNeedsReauth); err != nil {
				slog.Info(err.Error())
			}
		}
		return
	}
	if renewed == nil {
		return
	}

	encAccess, err := utils.Encrypt([]byte(renewed.AccessToken), secret)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var encRefresh string
	if renewed.RefreshToken != "" {
		encRefresh, err = utils.Encrypt([]byte(renewed.RefreshToken), secret)
		if err != nil {
			slog.Info(err.Error())
			return
		}
	}

	update := &models.SocialAccount{
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		SecondaryID:    renewed.SecondaryID,
		TokenExpiresAt: renewed.ExpiresAt,
	}
	if err := c.sr.SetToken(ctx, acc.ID, update); err != nil {
		slog.Info(err.Error())
	}
}
