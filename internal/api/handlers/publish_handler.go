package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"postbridge/internal/publish"
	"postbridge/internal/service"
	"postbridge/internal/transfer"
)

type PublishHandler struct {
	s service.PostService
}

func NewPublishHandler(service service.PostService) *PublishHandler {
	return &PublishHandler{s: service}
}

// PublishNow fans the post out immediately and reports the per-platform
// outcomes. Partial failure is still a 200: the caller reads the outcomes
// to see which platforms need attention.
func (h *PublishHandler) PublishNow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	pc := &transfer.PostCreation{
		Caption:   c.FormValue("caption"),
		Title:     c.FormValue("title"),
		Platforms: c.FormValue("platforms"),
		MediaURLs: c.FormValue("media_urls"),
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = form.File["files"]
	}

	outcomes, rejected, err := h.s.PublishNow(c.Context(), userID, pc, files)
	if err != nil {
		return publishError(c, err)
	}

	posted := 0
	for _, o := range outcomes {
		if o.Status == publish.StatusPosted {
			posted++
		}
	}

	var message string
	switch {
	case posted == len(outcomes):
		message = "Posted to all platforms"
	case posted == 0:
		message = "Posting failed on every platform"
	default:
		message = "Posted with some failures"
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":        message,
		"outcomes":       outcomes,
		"rejected_media": rejected,
	})
}

func publishError(c *fiber.Ctx, err error) error {
	var unsupported *publish.UnsupportedMediaError
	switch {
	case errors.Is(err, publish.ErrNoTargets):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No platforms selected",
		})
	case errors.Is(err, publish.ErrNothingToPublish):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Post has no text and no media",
		})
	case errors.As(err, &unsupported):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":     "Post is not supported by every selected platform",
			"platforms": unsupported.Platforms,
			"reason":    unsupported.Reason,
		})
	default:
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
