package middleware

import (
	"net"
	"net/http"
	"strings"
)

// clientIPHeaders are set by the edge in front of the service and take
// precedence over X-Forwarded-For, which clients can prepend to.
var clientIPHeaders = []string{"CF-Connecting-IP", "X-Nf-Client-Connection-Ip"}

// RealIP returns the client address used for rate limiting and request logs.
func RealIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		if ip := strings.TrimSpace(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
