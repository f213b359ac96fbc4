package ratelimit

import (
	"net/http"
	"strconv"

	limiter "github.com/ulule/limiter/v3"

	"github.com/hydroventas/pricing-api/internal/common"
)

// Middleware enforces a per-client request rate on the wrapped handler.
// Requests are keyed by organisation and client IP so one tenant cannot
// starve another. Limiter errors fail open.
type Middleware struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// Handler implements the http.Handler middleware interface.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := m.Limiter.Get(r.Context(), clientKey(r))
		if err != nil {
			if m.OnError != nil {
				m.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	key := common.ClientIP(r)
	if orgID, ok := common.OrgID(r); ok {
		key = orgID.String() + ":" + key
	}
	return key
}
