package circuitbreaker

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// HTTPWrapper wraps the http.Client of a review transport with a circuit
// breaker tracked under the transport's provider.
type HTTPWrapper struct {
	client *http.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewHTTPWrapper creates a new HTTP wrapper with circuit breaker and metrics.
// The client should not carry its own Timeout; deadlines come from the request context.
func NewHTTPWrapper(client *http.Client, name, provider string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(name, GetReviewConfig().ToConfig(), logger)
	Breakers.Track(cb, provider)
	return &HTTPWrapper{client: client, cb: cb, logger: logger}
}

// Do executes an HTTP request through the circuit breaker. 5xx responses are treated as failures
// for breaker purposes; 4xx do not trip the breaker. Cancellation by the caller is not a failure.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.ExecuteWith(req.Context(), func() error {
		var err2 error
		resp, err2 = hw.client.Do(req)
		if err2 != nil {
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled)
	})

	Breakers.Observe(hw.cb, err)

	// 5xx was only classified for the breaker; the caller still gets the response
	var se *httpStatusError
	if errors.As(err, &se) {
		return resp, nil
	}
	return resp, err
}

// IsCircuitBreakerOpen reports whether the wrapped transport is shedding calls.
func (hw *HTTPWrapper) IsCircuitBreakerOpen() bool {
	return hw.cb.IsOpen()
}

// Breaker exposes the underlying breaker for health reporting.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker {
	return hw.cb
}

// httpStatusError marks 5xx responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
