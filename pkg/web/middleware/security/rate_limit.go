package security

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/fluxorio/carwash/pkg/web"
)

// RateLimitConfig configures rate limiting
type RateLimitConfig struct {
	// PerSecond is the sustained rate of tokens. 0 disables the limit.
	PerSecond float64

	// Burst is the bucket size. Default 1.
	Burst int

	// Cost returns how many tokens a request consumes. Default 1. 0 passes
	// without touching the bucket.
	Cost func(ctx *web.RequestContext) int
}

// RateLimit rejects requests with 429 once the shared token bucket is empty.
// A request whose cost exceeds the burst can never be admitted and gets 413
// without a Retry-After hint.
func RateLimit(config RateLimitConfig) web.Middleware {
	if config.PerSecond <= 0 {
		return func(next web.Handler) web.Handler { return next }
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(config.PerSecond), burst)

	return func(next web.Handler) web.Handler {
		return func(ctx *web.RequestContext) error {
			n := 1
			if config.Cost != nil {
				n = config.Cost(ctx)
			}
			if n > limiter.Burst() {
				return ctx.Fail(fasthttp.StatusRequestEntityTooLarge, "cost_exceeds_burst",
					"request needs "+strconv.Itoa(n)+" tokens, burst is "+strconv.Itoa(limiter.Burst()))
			}
			if !limiter.AllowN(time.Now(), n) {
				ctx.RequestCtx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfter(limiter, n)))
				return ctx.Fail(fasthttp.StatusTooManyRequests, "rate_limited", "too many requests")
			}
			return next(ctx)
		}
	}
}

// retryAfter is a whole-second hint for when n tokens will be available.
func retryAfter(limiter *rate.Limiter, n int) int {
	return int(float64(n)/float64(limiter.Limit())) + 1
}
