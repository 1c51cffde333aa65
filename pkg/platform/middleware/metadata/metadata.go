// Package metadata captures client IP and User-Agent for audit enrichment.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"billtrack/pkg/requestcontext"
)

// ClientMetadata stores the client IP and User-Agent in the request context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest prefers proxy headers over RemoteAddr.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// DeviceLabel condenses a User-Agent into "Browser on OS" for audit trails.
// Bots and API clients return their product name.
func DeviceLabel(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	if parsed.Bot() || browser == "" {
		return browser
	}
	if osName := parsed.OS(); osName != "" {
		if parsed.Mobile() {
			return browser + " on " + osName + " (mobile)"
		}
		return browser + " on " + osName
	}
	return browser
}
