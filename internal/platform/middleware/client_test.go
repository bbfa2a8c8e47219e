package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func describeThrough(t *testing.T, userAgent string) string {
	t.Helper()

	var got string
	handler := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientInfo(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientInfo(t *testing.T) {
	t.Run("desktop browser", func(t *testing.T) {
		got := describeThrough(t,
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		assert.Contains(t, got, "Chrome")
		assert.Contains(t, got, " on ")
	})

	t.Run("crawler", func(t *testing.T) {
		got := describeThrough(t,
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		assert.Equal(t, "bot", got)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, "unknown client", describeThrough(t, ""))
	})
}
