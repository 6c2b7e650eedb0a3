package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	config "postbridge/configs"
)

func TestIntersect(t *testing.T) {
	twitter := NewTwitterAdapter(config.Config{})
	facebook := NewFacebookAdapter(config.Config{})

	got := Intersect([]Adapter{twitter, facebook})

	// twitter's 280 characters is the tightest text limit in the pair
	assert.Equal(t, 280, got.MaxTextLength)
	assert.Equal(t, 4, got.MaxMediaCount)
	assert.True(t, got.SupportsVideo)
	assert.Contains(t, got.AllowedImageFormats, "png")
	assert.Contains(t, got.AllowedVideoFormats, "mp4")
}

func TestIntersectVideoDisabledByOneAdapter(t *testing.T) {
	withVideo := NewTwitterAdapter(config.Config{})

	noVideo := &stubAdapter{limits: Limits{
		MaxTextLength:       63206,
		MaxMediaCount:       10,
		SupportsVideo:       false,
		AllowedImageFormats: []string{"jpg", "png"},
	}}

	got := Intersect([]Adapter{withVideo, noVideo})
	assert.False(t, got.SupportsVideo)
	assert.Empty(t, got.AllowedVideoFormats)
}

func TestIntersectEmpty(t *testing.T) {
	assert.Equal(t, Limits{}, Intersect(nil))
}

func TestRegistry(t *testing.T) {
	twitter := NewTwitterAdapter(config.Config{})
	facebook := NewFacebookAdapter(config.Config{})
	r := NewRegistry(twitter, facebook)

	a, ok := r.Get("twitter")
	assert.True(t, ok)
	assert.Equal(t, "twitter", a.Platform())

	_, ok = r.Get("myspace")
	assert.False(t, ok)

	assert.Equal(t, []string{"twitter", "facebook"}, r.Platforms())
}

type stubAdapter struct {
	Adapter
	limits Limits
}

func (s *stubAdapter) Limits() Limits { return s.limits }
