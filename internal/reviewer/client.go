package reviewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
)

// Request is one review call: a system and a user message plus sampling limits.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response carries the raw review text and the usage the provider reported.
type Response struct {
	Text         string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// Client sends review requests to a text generation backend.
// Implementations share one transport and keep no per-call state, so a
// single Client may be used from many goroutines.
type Client interface {
	Review(ctx context.Context, req Request) (Response, error)
	Provider() string
}

// Kind classifies a failed review call.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream_error"
)

// Error is returned by every Client implementation on failure.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s review call failed (%s, HTTP %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s review call failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrRateLimited is wrapped when the local limiter refuses a call.
var ErrRateLimited = errors.New("review rate limit exceeded")

// KindOf returns the failure kind of err, or "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindUpstream
	}
}

// newError classifies a transport error or an HTTP status into an *Error.
func newError(provider string, status int, err error) *Error {
	kind := KindUpstream
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case status == http.StatusTooManyRequests, errors.Is(err, ErrRateLimited):
		kind = KindRateLimited
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		kind = KindUpstream
	}
	if err == nil {
		err = fmt.Errorf("unexpected status %d", status)
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}
