package middleware

import (
	"net"
	"net/http"

	goMFA "github.com/MrEthical07/goMFA"
)

// RequestMetadata attaches the peer address and User-Agent header to the
// request context. Proxies that rewrite RemoteAddr should run before it.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := goMFA.WithRequestContext(r.Context(), goMFA.RequestContext{
			IP:        host,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
