package transfer

// PostCreation is the multipart form body for publishing or scheduling.
// Platforms and MediaURLs arrive as JSON-encoded string arrays.
type PostCreation struct {
	Caption       string
	Title         string
	Platforms     string
	MediaURLs     string
	ScheduledTime string
}
