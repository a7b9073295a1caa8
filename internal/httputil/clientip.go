package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the originating client address for log fields and
// span attributes. X-Forwarded-For wins (first hop), then X-Real-IP, then
// the connection's remote address with any port stripped.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
