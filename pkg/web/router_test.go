package web

import (
	"errors"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, path string) *fasthttp.RequestCtx {
	var rc fasthttp.RequestCtx
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(path)
	r.ServeFastHTTP(&rc)
	return &rc
}

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter(nil)
	r.GET("/status", func(ctx *RequestContext) error {
		return ctx.JSON(fasthttp.StatusOK, map[string]bool{"running": true})
	})
	r.POST("/fail", func(ctx *RequestContext) error {
		return errors.New("boom")
	})

	rc := serve(r, "GET", "/status")
	if rc.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("GET /status = %d, want 200", rc.Response.StatusCode())
	}
	if string(rc.Response.Body()) != `{"running":true}` {
		t.Errorf("body = %s", rc.Response.Body())
	}
	if len(rc.Response.Header.Peek(RequestIDHeader)) == 0 {
		t.Error("response should carry a request id")
	}

	if rc := serve(r, "POST", "/status"); rc.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want 405", rc.Response.StatusCode())
	}
	if rc := serve(r, "GET", "/missing"); rc.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("GET /missing = %d, want 404", rc.Response.StatusCode())
	}

	rc = serve(r, "POST", "/fail")
	if rc.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("POST /fail = %d, want 500", rc.Response.StatusCode())
	}
	if !strings.Contains(string(rc.Response.Body()), `"error":"internal_error"`) {
		t.Errorf("error body = %s", rc.Response.Body())
	}
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	r := NewRouter(nil)
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx *RequestContext) error {
				order = append(order, name)
				return next(ctx)
			}
		}
	}
	r.Use(mark("global"))
	r.GET("/x", func(ctx *RequestContext) error {
		order = append(order, "handler")
		return nil
	}, mark("route-1"), mark("route-2"))

	serve(r, "GET", "/x")
	if got := strings.Join(order, ","); got != "global,route-1,route-2,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestRequestContext_RequestIDPassthrough(t *testing.T) {
	r := NewRouter(nil)
	r.GET("/id", func(ctx *RequestContext) error {
		return ctx.JSON(fasthttp.StatusOK, ctx.RequestID())
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.SetMethod("GET")
	rc.Request.SetRequestURI("/id")
	rc.Request.Header.Set(RequestIDHeader, "req-42")
	r.ServeFastHTTP(&rc)

	if string(rc.Response.Body()) != `"req-42"` {
		t.Errorf("request id = %s, want req-42", rc.Response.Body())
	}
}
