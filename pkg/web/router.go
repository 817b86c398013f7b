package web

import (
	"log/slog"
	"sync"

	"github.com/valyala/fasthttp"
)

// Handler handles one request. A returned error becomes a 500 response.
type Handler func(ctx *RequestContext) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

type route struct {
	method  string
	path    string
	handler Handler
}

// Router dispatches on exact method and path.
type Router struct {
	mu         sync.RWMutex
	routes     []route
	middleware []Middleware
	logger     *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// Use appends middleware applied to every route, outermost first.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Handle registers handler for method and path. Route middleware runs
// inside the router-wide middleware.
func (r *Router) Handle(method, path string, handler Handler, mw ...Middleware) {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{method: method, path: path, handler: handler})
}

func (r *Router) GET(path string, handler Handler, mw ...Middleware) {
	r.Handle(fasthttp.MethodGet, path, handler, mw...)
}

func (r *Router) POST(path string, handler Handler, mw ...Middleware) {
	r.Handle(fasthttp.MethodPost, path, handler, mw...)
}

// ServeFastHTTP implements fasthttp.RequestHandler.
func (r *Router) ServeFastHTTP(rc *fasthttp.RequestCtx) {
	ctx := newRequestContext(rc)

	r.mu.RLock()
	handler := r.match(string(rc.Method()), string(rc.Path()))
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	r.mu.RUnlock()

	if err := handler(ctx); err != nil {
		r.logger.Error("request failed",
			"request_id", ctx.RequestID(),
			"method", string(rc.Method()),
			"path", string(rc.Path()),
			"error", err,
		)
		ctx.Fail(fasthttp.StatusInternalServerError, "internal_error", err.Error())
	}
}

// match returns the route handler, or a 404/405 responder. Caller holds r.mu.
func (r *Router) match(method, path string) Handler {
	pathFound := false
	for _, rt := range r.routes {
		if rt.path != path {
			continue
		}
		if rt.method == method {
			return rt.handler
		}
		pathFound = true
	}
	if pathFound {
		return func(ctx *RequestContext) error {
			return ctx.Fail(fasthttp.StatusMethodNotAllowed, "method_not_allowed", "method "+method+" not allowed on "+path)
		}
	}
	return func(ctx *RequestContext) error {
		return ctx.Fail(fasthttp.StatusNotFound, "not_found", "no route for "+path)
	}
}
