package middleware

import (
	"net/http"

	"github.com/dustin/go-humanize"
)

const defaultMaxBodySize = 10 << 20

// BodySizeLimit restricts request bodies to maxSize, a human-readable size
// such as "10MB", "512KiB" or "1048576". Unparseable or empty values fall
// back to 10 MiB.
func BodySizeLimit(maxSize string) Middleware {
	size := ParseSize(maxSize, defaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, size)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseSize converts a human-readable size to bytes, returning def when s
// is empty, invalid or zero.
func ParseSize(s string, def int64) int64 {
	n, err := humanize.ParseBytes(s)
	if err != nil || n == 0 || n > 1<<40 {
		return def
	}
	return int64(n)
}
