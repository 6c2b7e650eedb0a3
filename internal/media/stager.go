package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"postbridge/internal/models"
	"postbridge/internal/platform"
)

// Uploader stores raw file bytes and returns a publicly reachable URL.
type Uploader interface {
	Upload(ctx context.Context, file []byte, contentType string) (string, error)
}

// Rejection explains why a single item was not staged. Rejections are
// reported back to the caller instead of failing the whole batch.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Stager accumulates media for one publish request. Limits are supplied
// on every Add call because the tightest set depends on which platforms
// are currently selected.
type Stager struct {
	uploader Uploader
	items    []models.MediaItem
	seen     map[string]struct{}
}

func NewStager(uploader Uploader) *Stager {
	return &Stager{
		uploader: uploader,
		seen:     make(map[string]struct{}),
	}
}

func (s *Stager) Items() []models.MediaItem {
	return s.items
}

// Clear drops everything staged so far, including the duplicate record.
func (s *Stager) Clear() {
	s.items = nil
	s.seen = make(map[string]struct{})
}

// AddFiles sniffs, validates and uploads each file. Files that fail
// validation are skipped and reported, accepted files are staged in the
// order they were given.
func (s *Stager) AddFiles(ctx context.Context, limits platform.Limits, files []*multipart.FileHeader) ([]Rejection, error) {
	var rejected []Rejection

	for _, file := range files {
		if len(s.items) >= limits.MaxMediaCount {
			rejected = append(rejected, Rejection{Name: file.Filename, Reason: fmt.Sprintf("media limit of %d reached", limits.MaxMediaCount)})
			continue
		}

		fileContent, err := file.Open()
		if err != nil {
			return rejected, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return rejected, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			rejected = append(rejected, Rejection{Name: file.Filename, Reason: "unrecognized file type"})
			continue
		}

		if reason, ok := checkAgainst(limits, fileType, int64(len(fileBytes))); !ok {
			rejected = append(rejected, Rejection{Name: file.Filename, Reason: reason})
			continue
		}

		url, err := s.uploader.Upload(ctx, fileBytes, fileType.MIME.Value)
		if err != nil {
			return rejected, fmt.Errorf("error uploading file: %w", err)
		}

		s.items = append(s.items, models.MediaItem{
			SourceKind: models.MediaSourceUpload,
			MediaType:  fileType.MIME.Type,
			Format:     fileType.Extension,
			SizeBytes:  int64(len(fileBytes)),
			URL:        url,
		})
		s.seen[url] = struct{}{}
	}

	return rejected, nil
}

// AddURLs stages remote media by reference. A URL that was already
// staged, by upload or by reference, is skipped silently. The media
// type is inferred from the URL extension.
func (s *Stager) AddURLs(limits platform.Limits, urls []string) []Rejection {
	var rejected []Rejection

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := s.seen[u]; dup {
			continue
		}
		if len(s.items) >= limits.MaxMediaCount {
			rejected = append(rejected, Rejection{Name: u, Reason: fmt.Sprintf("media limit of %d reached", limits.MaxMediaCount)})
			continue
		}

		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u), "."))
		mediaType, ok := mediaTypeForExtension(ext)
		if !ok {
			rejected = append(rejected, Rejection{Name: u, Reason: "unrecognized file extension"})
			continue
		}

		if mediaType == models.MediaTypeImage && !limits.AllowsImageFormat(ext) {
			rejected = append(rejected, Rejection{Name: u, Reason: fmt.Sprintf("image format %s is not supported by every selected platform", ext)})
			continue
		}
		if mediaType == models.MediaTypeVideo {
			if !limits.SupportsVideo {
				rejected = append(rejected, Rejection{Name: u, Reason: "video is not supported by every selected platform"})
				continue
			}
			if !limits.AllowsVideoFormat(ext) {
				rejected = append(rejected, Rejection{Name: u, Reason: fmt.Sprintf("video format %s is not supported by every selected platform", ext)})
				continue
			}
		}

		s.items = append(s.items, models.MediaItem{
			SourceKind: models.MediaSourceURL,
			MediaType:  mediaType,
			Format:     ext,
			URL:        u,
		})
		s.seen[u] = struct{}{}
	}

	return rejected
}

func checkAgainst(limits platform.Limits, t types.Type, size int64) (string, bool) {
	switch t.MIME.Type {
	case "image":
		if !limits.AllowsImageFormat(t.Extension) {
			return fmt.Sprintf("image format %s is not supported by every selected platform", t.Extension), false
		}
		if limits.MaxImageSizeBytes > 0 && size > limits.MaxImageSizeBytes {
			return fmt.Sprintf("image exceeds the %d byte limit", limits.MaxImageSizeBytes), false
		}
	case "video":
		if !limits.SupportsVideo {
			return "video is not supported by every selected platform", false
		}
		if !limits.AllowsVideoFormat(t.Extension) {
			return fmt.Sprintf("video format %s is not supported by every selected platform", t.Extension), false
		}
		if limits.MaxVideoSizeBytes > 0 && size > limits.MaxVideoSizeBytes {
			return fmt.Sprintf("video exceeds the %d byte limit", limits.MaxVideoSizeBytes), false
		}
	default:
		return fmt.Sprintf("file type %s is not allowed", t.Extension), false
	}
	return "", true
}

func mediaTypeForExtension(ext string) (string, bool) {
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return models.MediaTypeImage, true
	case "mp4", "mov", "webm":
		return models.MediaTypeVideo, true
	default:
		return "", false
	}
}
