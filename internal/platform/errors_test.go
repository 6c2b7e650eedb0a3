package platform

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func respWithStatus(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		headers        map[string]string
		wantKind       ErrorKind
		wantRetryAfter time.Duration
	}{
		{name: "unauthorized", status: 401, wantKind: KindAuthExpired},
		{name: "forbidden", status: 403, wantKind: KindAuthExpired},
		{name: "rate limited", status: 429, wantKind: KindRateLimited},
		{
			name:           "rate limited with retry-after",
			status:         429,
			headers:        map[string]string{"Retry-After": "120"},
			wantKind:       KindRateLimited,
			wantRetryAfter: 120 * time.Second,
		},
		{
			name:     "rate limited with malformed retry-after",
			status:   429,
			headers:  map[string]string{"Retry-After": "soon"},
			wantKind: KindRateLimited,
		},
		{name: "bad request", status: 400, wantKind: KindPayloadRejected},
		{name: "unprocessable", status: 422, wantKind: KindPayloadRejected},
		{name: "server error", status: 500, wantKind: KindUnknown},
		{name: "bad gateway", status: 502, wantKind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classifyStatus("twitter", respWithStatus(tt.status, tt.headers), "boom")
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantRetryAfter, e.RetryAfter)
			assert.Equal(t, "twitter", e.Platform)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.False(t, (&Error{Kind: KindAuthExpired}).Retryable())
	assert.False(t, (&Error{Kind: KindPayloadRejected}).Retryable())
	assert.False(t, (&Error{Kind: KindMissingCredential}).Retryable())
	assert.False(t, (&Error{Kind: KindUnknown}).Retryable())
}

func TestAsError(t *testing.T) {
	typed := &Error{Platform: "tiktok", Kind: KindRateLimited}
	assert.Same(t, typed, AsError("tiktok", typed))

	wrapped := AsError("tiktok", errors.New("connection reset"))
	assert.Equal(t, KindUnknown, wrapped.Kind)
	assert.Equal(t, "tiktok", wrapped.Platform)
	assert.Equal(t, "connection reset", wrapped.Message)
}
