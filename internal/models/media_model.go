package models

const (
	MediaSourceUpload = "uploaded_file"
	MediaSourceURL    = "remote_url"

	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// MediaItem is one staged image or video, normalized to a publicly
// reachable URL that adapters can pull from. SizeBytes is zero when the
// item came in as a bare URL.
type MediaItem struct {
	ID         string `db:"media_id" json:"id"`
	SourceKind string `db:"source_kind" json:"source_kind"`
	MediaType  string `db:"media_type" json:"media_type"`
	Format     string `db:"format" json:"format"`
	SizeBytes  int64  `db:"size_bytes" json:"size_bytes"`
	URL        string `db:"file_url" json:"url"`
}
