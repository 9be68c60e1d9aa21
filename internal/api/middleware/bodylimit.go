package middleware

import (
	"net/http"
)

// MaxJSONBodySize is the maximum allowed size for JSON request bodies (1 MB).
const MaxJSONBodySize int64 = 1 << 20 // 1 MB

// BodyLimitMiddleware restricts the size of request bodies to prevent
// denial-of-service attacks via excessively large JSON payloads.
// multipart/form-data requests are left to whatever http_routes handler
// receives them, since this bus has no endpoint that expects one.
func BodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)
		}

		next.ServeHTTP(w, r)
	})
}
