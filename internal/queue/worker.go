package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"postbridge/internal/models"
	"postbridge/internal/publish"
)

func (j *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return j.PublishPost(ctx, payload.PostID)
}

// PublishPost runs a stored post through the orchestrator at fire time and
// records the aggregate result on the post row.
func (j *Queue) PublishPost(ctx context.Context, postID int64) error {
	post, err := j.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		log.Printf("post %d no longer exists, dropping task", postID)
		return nil
	}
	if post.Status != models.PostStatusScheduled {
		log.Printf("post %d already handled (status %s), dropping task", postID, post.Status)
		return nil
	}

	items, err := j.pm.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}

	req := &publish.Request{
		UserID:    post.UserID,
		Text:      post.Caption,
		Media:     items,
		Platforms: post.Platforms,
	}

	outcomes, err := j.orch.Publish(ctx, req)
	if err != nil {
		if uerr := j.pr.UpdateStatus(ctx, postID, models.PostStatusFailed, err.Error()); uerr != nil {
			log.Printf("error updating post %d: %v", postID, uerr)
		}
		return err
	}

	status, summary := summarize(outcomes)
	if err := j.pr.UpdateStatus(ctx, postID, status, summary); err != nil {
		log.Printf("error updating post %d: %v", postID, err)
		return err
	}

	return nil
}

func summarize(outcomes []publish.Outcome) (string, string) {
	var failures []string
	for _, o := range outcomes {
		if o.Status == publish.StatusFailed {
			failures = append(failures, fmt.Sprintf("%s: %s", o.Platform, o.Error))
		}
	}

	switch {
	case len(failures) == 0:
		return models.PostStatusPosted, ""
	case len(failures) == len(outcomes):
		return models.PostStatusFailed, strings.Join(failures, "; ")
	default:
		return models.PostStatusPartial, strings.Join(failures, "; ")
	}
}
