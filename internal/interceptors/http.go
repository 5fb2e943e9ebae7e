// Package interceptors propagates request correlation data on outgoing calls.
package interceptors

import (
	"context"
	"net/http"
)

// RequestIDHeader carries the caller's request id to the review service.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDRoundTripper adds the context's request id to outgoing HTTP requests
type RequestIDRoundTripper struct {
	base http.RoundTripper
}

// NewRequestIDRoundTripper wraps base, or http.DefaultTransport when nil.
func NewRequestIDRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestIDRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. An explicit header on the request wins.
func (rt *RequestIDRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	id := RequestIDFromContext(req.Context())
	if id == "" || req.Header.Get(RequestIDHeader) != "" {
		return rt.base.RoundTrip(req)
	}
	// RoundTrippers must not mutate the caller's request
	out := req.Clone(req.Context())
	out.Header.Set(RequestIDHeader, id)
	return rt.base.RoundTrip(out)
}

// NewHTTPClient returns a client whose transport propagates request ids. It
// carries no timeout; deadlines come from the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: NewRequestIDRoundTripper(nil)}
}
