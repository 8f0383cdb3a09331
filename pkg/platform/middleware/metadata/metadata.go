package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"obconsent/pkg/requestcontext"
)

// ClientMetadata stores client IP, raw User-Agent and the parsed device in the
// request context. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua)
		ctx = requestcontext.WithDevice(ctx, ParseDevice(ua))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseDevice extracts browser, OS and form factor from a User-Agent string.
func ParseDevice(ua string) requestcontext.Device {
	if ua == "" {
		return requestcontext.Device{}
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	return requestcontext.Device{
		Browser: browser,
		OS:      parsed.OS(),
		Mobile:  parsed.Mobile(),
	}
}

// ClientIPFromRequest resolves the originating client IP behind proxies.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first entry is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
