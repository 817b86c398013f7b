package middleware

import (
	"fmt"
	"log/slog"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/carwash/pkg/web"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	// Logger is the logger to use for panic logging (default: slog.Default())
	Logger *slog.Logger

	// StackTrace includes the panic value in the error response (use with caution in production)
	StackTrace bool
}

// Recovery middleware recovers from panics and returns 500 error
func Recovery(config RecoveryConfig) web.Middleware {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next web.Handler) web.Handler {
		return func(ctx *web.RequestContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered",
						"request_id", ctx.RequestID(),
						"method", string(ctx.Method()),
						"path", string(ctx.Path()),
						"panic", r,
					)

					msg := "Internal Server Error"
					if config.StackTrace {
						msg = fmt.Sprintf("Panic: %v", r)
					}
					err = ctx.Fail(fasthttp.StatusInternalServerError, "internal_server_error", msg)
				}
			}()
			return next(ctx)
		}
	}
}
