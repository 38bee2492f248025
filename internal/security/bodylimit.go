package security

import (
	"net/http"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
)

// MaxBody caps request payload sizes. Carts and checkout bodies are tiny;
// anything past the limit is either a mistake or abuse.
type MaxBody struct {
	Bytes int64
}

func (m MaxBody) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Bytes <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > m.Bytes {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds limit", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, m.Bytes)
		next.ServeHTTP(w, r)
	})
}
