package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateTitleCountsRunes(t *testing.T) {
	short := "an ordinary caption"
	assert.Equal(t, short, truncateTitle(short))

	long := strings.Repeat("日本語のキャプション", 20)
	got := truncateTitle(long)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func tempVideoFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(os.TempDir(), "video-*.mp4"))
	require.NoError(t, err)
	return files
}

func TestDownloadToTemp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video bytes"))
	}))
	defer server.Close()

	name, err := downloadToTemp(context.Background(), server.URL+"/v.mp4")
	require.NoError(t, err)
	defer os.Remove(name)

	content, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(content))
}

func TestDownloadToTempCleansUpOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	before := tempVideoFiles(t)

	_, err := downloadToTemp(context.Background(), server.URL+"/v.mp4")
	require.Error(t, err)

	assert.Equal(t, before, tempVideoFiles(t))
}
