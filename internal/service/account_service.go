package service

import (
	"context"
	"errors"
	"log/slog"

	config "postbridge/configs"
	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/internal/repository"
	"postbridge/pkg/utils"
)

type AccountService interface {
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	RequestRemoval(ctx context.Context, userID, accountID int64) (string, error)
	ConfirmRemoval(ctx context.Context, userID, accountID int64, confirmToken string) error
}

type accountService struct {
	cfg      *config.Config
	sa       repository.SocialAccountRepository
	adapters *platform.Registry
}

func NewAccountService(cfg *config.Config, sa repository.SocialAccountRepository, adapters *platform.Registry) AccountService {
	return &accountService{
		cfg:      cfg,
		sa:       sa,
		adapters: adapters,
	}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		err := errors.New("user id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	return s.sa.ListInfoByUserID(ctx, userID)
}

// RequestRemoval checks ownership and mints the confirmation token the
// caller must present back to actually disconnect.
func (s *accountService) RequestRemoval(ctx context.Context, userID, accountID int64) (string, error) {
	exists, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.New("social account does not exist")
	}

	return utils.GenerateConfirmToken(s.cfg.SecretKey, userID, accountID)
}

// ConfirmRemoval revokes the provider grant on a best effort basis and then
// deletes the stored account. Removing an already removed account succeeds.
func (s *accountService) ConfirmRemoval(ctx context.Context, userID, accountID int64, confirmToken string) error {
	if err := utils.ValidateConfirmToken(s.cfg.SecretKey, confirmToken, userID, accountID); err != nil {
		return err
	}

	account, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil || account.UserID != userID {
		return nil
	}

	s.revoke(ctx, account)

	return s.sa.Remove(ctx, accountID)
}

func (s *accountService) revoke(ctx context.Context, account *models.SocialAccount) {
	adapter, ok := s.adapters.Get(account.Platform)
	if !ok {
		return
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	cred := &platform.Credential{
		AccessToken: accessToken,
		SecondaryID: account.SecondaryID,
	}
	if err := adapter.Revoke(ctx, cred); err != nil {
		slog.Info("token revocation failed", "platform", account.Platform, "error", err.Error())
	}
}
