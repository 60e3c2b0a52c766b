package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/topicmine/platform/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns every request a random id unless the caller supplied
// one, echoes it back in the response header, and stores it in the request
// context for logger.FromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b[:])
}
