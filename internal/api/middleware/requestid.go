package middleware

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	// maxRequestIDLen bounds client ids, which end up in stored run reports.
	maxRequestIDLen = 64
)

// RequestIDFromContext returns the id RequestID attached to ctx.
func RequestIDFromContext(ctx context.Context) string {
	return domain.RequestIDFrom(ctx)
}

// RequestID tags every request with an id, echoed in the response header.
// A client id is kept when it is short printable ASCII; anything else is
// replaced by a fresh UUID. Runs started by the request record the id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < '!' || c > '~' {
			return false
		}
	}
	return true
}
