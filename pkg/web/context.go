package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestContext wraps fasthttp.RequestCtx with JSON helpers and
// per-request values.
type RequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	values     map[string]any
	requestID  string
}

func newRequestContext(rc *fasthttp.RequestCtx) *RequestContext {
	id := string(rc.Request.Header.Peek(RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	rc.Response.Header.Set(RequestIDHeader, id)
	return &RequestContext{RequestCtx: rc, requestID: id}
}

// JSON writes a JSON response - fail-fast
func (c *RequestContext) JSON(statusCode int, data any) error {
	// Fail-fast: validate status code
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}

	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	c.RequestCtx.Write(body)
	return nil
}

// BindJSON binds the JSON request body to v. An empty body leaves v untouched.
func (c *RequestContext) BindJSON(v any) error {
	if v == nil {
		return fmt.Errorf("cannot bind to nil value")
	}
	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// Query returns query parameter value
func (c *RequestContext) Query(key string) string {
	return string(c.RequestCtx.QueryArgs().Peek(key))
}

// Method returns HTTP method
func (c *RequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns request path
func (c *RequestContext) Path() []byte {
	return c.RequestCtx.Path()
}

// Set stores a request-scoped value.
func (c *RequestContext) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a request-scoped value.
func (c *RequestContext) Get(key string) any {
	return c.values[key]
}

// RequestID returns the request ID for this request
func (c *RequestContext) RequestID() string {
	return c.requestID
}

// Context returns a context bound to the request lifetime.
func (c *RequestContext) Context() context.Context {
	return c.RequestCtx
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Fail writes an error response.
func (c *RequestContext) Fail(statusCode int, code, message string) error {
	return c.JSON(statusCode, errorBody{Error: code, Message: message, RequestID: c.requestID})
}
