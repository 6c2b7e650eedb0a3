package queue

import (
	"postbridge/internal/publish"
	"postbridge/internal/repository"
)

type Queue struct {
	pr   repository.PostRepository
	pm   repository.PostMediaRepository
	orch *publish.Orchestrator
}

func NewQueue(
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	orch *publish.Orchestrator) *Queue {
	return &Queue{
		pr:   pr,
		pm:   pm,
		orch: orch,
	}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}
