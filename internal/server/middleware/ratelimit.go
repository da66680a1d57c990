package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/sofragment/fragment/internal/apperr"
)

var errTooManyRequests = apperr.RateLimit("Too many requests, please try again later")

// RateLimit returns an HTTP middleware that limits each client IP to max
// requests per window. Rejections use the standard error envelope.
func RateLimit(max int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		max,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			apperr.Write(w, errTooManyRequests, false)
		}),
	)
}
