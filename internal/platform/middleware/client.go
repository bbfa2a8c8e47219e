package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type clientInfoKey struct{}

// ClientInfo parses the User-Agent header into a short human-readable device
// description and stores it in the request context. Audit entries carry it so
// a subject's access trail shows which device acted.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := describeClient(r.Header.Get("User-Agent"))
		ctx := context.WithValue(r.Context(), clientInfoKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientInfo retrieves the device description from the context.
func GetClientInfo(ctx context.Context) string {
	if info, ok := ctx.Value(clientInfoKey{}).(string); ok {
		return info
	}
	return ""
}

func describeClient(userAgentString string) string {
	if userAgentString == "" {
		return "unknown client"
	}
	ua := useragent.New(userAgentString)
	if ua.Bot() {
		return "bot"
	}

	browser, _ := ua.Browser()
	browser = strings.TrimSpace(browser)
	os := strings.TrimSpace(ua.OS())
	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "unknown client"
	}
}
