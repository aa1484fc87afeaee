package security

import (
	"net/http"

	"github.com/noah-isme/akcizas/internal/common"
)

// BodyLimit caps request payload size. Bodies declaring a larger
// Content-Length are refused up front; others are wrapped in
// http.MaxBytesReader and surface as PAYLOAD_TOO_LARGE from
// common.DecodeJSON once the cap is crossed.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge, "request entity too large",
				map[string]any{"max_bytes": b.Max})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}
