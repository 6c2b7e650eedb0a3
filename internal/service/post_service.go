package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/hibiken/asynq"

	"postbridge/internal/media"
	"postbridge/internal/models"
	"postbridge/internal/platform"
	"postbridge/internal/publish"
	"postbridge/internal/queue"
	"postbridge/internal/repository"
	"postbridge/internal/transfer"
)

type PostService interface {
	PublishNow(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) ([]publish.Outcome, []media.Rejection, error)
	CreateScheduled(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, []media.Rejection, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db       *sql.DB
	pr       repository.PostRepository
	pm       repository.PostMediaRepository
	adapters *platform.Registry
	orch     *publish.Orchestrator
	uploader media.Uploader
	asynq    *asynq.Client
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	adapters *platform.Registry,
	orch *publish.Orchestrator,
	uploader media.Uploader,
	asynqClient *asynq.Client) PostService {
	return &postService{
		db:       db,
		pr:       pr,
		pm:       pm,
		adapters: adapters,
		orch:     orch,
		uploader: uploader,
		asynq:    asynqClient,
	}
}

// PublishNow stages the request's media and fans it out immediately.
func (s *postService) PublishNow(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) ([]publish.Outcome, []media.Rejection, error) {
	platforms, err := s.parsePlatforms(pc.Platforms)
	if err != nil {
		return nil, nil, err
	}

	items, rejected, err := s.stageMedia(ctx, platforms, pc.MediaURLs, files)
	if err != nil {
		return nil, rejected, err
	}

	req := &publish.Request{
		UserID:    userID,
		Text:      pc.Caption,
		Media:     items,
		Platforms: platforms,
	}

	outcomes, err := s.orch.Publish(ctx, req)
	if err != nil {
		return nil, rejected, err
	}

	return outcomes, rejected, nil
}

// CreateScheduled validates and stores the post, then enqueues it for its
// scheduled time. Validation runs now so a bad post fails at submission,
// not silently when the queue fires.
func (s *postService) CreateScheduled(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, []media.Rejection, error) {
	scheduledTime, err := time.Parse("2006-01-02T15:04", pc.ScheduledTime)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Info(err.Error())
		return 0, nil, err
	}

	platforms, err := s.parsePlatforms(pc.Platforms)
	if err != nil {
		return 0, nil, err
	}

	items, rejected, err := s.stageMedia(ctx, platforms, pc.MediaURLs, files)
	if err != nil {
		return 0, rejected, err
	}

	req := &publish.Request{
		UserID:    userID,
		Text:      pc.Caption,
		Media:     items,
		Platforms: platforms,
	}
	if err := s.orch.Validate(req); err != nil {
		return 0, rejected, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, rejected, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:        userID,
		Caption:       pc.Caption,
		Title:         pc.Title,
		Platforms:     platforms,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusScheduled,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, rejected, fmt.Errorf("error creating post: %w", err)
	}

	for i := range items {
		if err = s.pm.Create(ctx, tx, postID, &items[i], i); err != nil {
			return 0, rejected, fmt.Errorf("error saving media file: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, rejected, fmt.Errorf("failed to commit transaction: %w", err)
	}

	delay := time.Until(scheduledTime)
	if delay < 0 {
		delay = 0
	}

	if err := queue.EnqueuePost(s.asynq, queue.PublishPostPayload{PostID: postID}, delay); err != nil {
		slog.Info(err.Error())
		return 0, rejected, fmt.Errorf("error scheduling post: %w", err)
	}

	return postID, rejected, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	if userID == 0 {
		err := errors.New("user id is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.pr.GetByUserID(ctx, userID)
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	exists, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.New("post doesn't exist")
	}
	return s.pr.GetByID(ctx, postID)
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	exists, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.New("post doesn't exist")
	}
	return s.pr.Remove(ctx, postID)
}

func (s *postService) parsePlatforms(raw string) ([]string, error) {
	var platforms []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &platforms); err != nil {
			err = fmt.Errorf("invalid platforms format: %w", err)
			slog.Info(err.Error())
			return nil, err
		}
	}
	if len(platforms) == 0 {
		return nil, publish.ErrNoTargets
	}

	for _, id := range platforms {
		if _, ok := s.adapters.Get(id); !ok {
			return nil, fmt.Errorf("unknown platform %q", id)
		}
	}
	return platforms, nil
}

// stageMedia uploads files and registers remote URLs against the tightest
// limits of the selected platforms.
func (s *postService) stageMedia(ctx context.Context, platforms []string, rawURLs string, files []*multipart.FileHeader) ([]models.MediaItem, []media.Rejection, error) {
	adapters := make([]platform.Adapter, 0, len(platforms))
	for _, id := range platforms {
		a, _ := s.adapters.Get(id)
		adapters = append(adapters, a)
	}
	limits := platform.Intersect(adapters)

	stager := media.NewStager(s.uploader)

	rejected, err := stager.AddFiles(ctx, limits, files)
	if err != nil {
		return nil, rejected, err
	}

	if rawURLs != "" {
		var urls []string
		if err := json.Unmarshal([]byte(rawURLs), &urls); err != nil {
			err = fmt.Errorf("invalid media urls format: %w", err)
			slog.Info(err.Error())
			return nil, rejected, err
		}
		rejected = append(rejected, stager.AddURLs(limits, urls)...)
	}

	return stager.Items(), rejected, nil
}
