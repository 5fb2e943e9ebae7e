package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
)

type fakePinger struct {
	err  error
	open bool
}

func (f fakePinger) Ping(context.Context) error { return f.err }
func (f fakePinger) BreakerOpen() bool          { return f.open }

func trippedBreaker(t *testing.T) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.NewCircuitBreaker("review-test", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}, zaptest.NewLogger(t))
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.True(t, cb.IsOpen())
	return cb
}

func TestBreakerChecker(t *testing.T) {
	closed := circuitbreaker.NewCircuitBreaker("review-ok", circuitbreaker.Config{FailureThreshold: 5, MaxRequests: 1}, zaptest.NewLogger(t))
	assert.Equal(t, StatusHealthy, NewBreakerChecker("review", closed).Check(context.Background()).Status)

	res := NewBreakerChecker("review", trippedBreaker(t)).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "open", res.Details["state"])

	assert.Equal(t, StatusUnknown, NewBreakerChecker("review", nil).Check(context.Background()).Status)
}

func TestRedisChecker(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, NewRedisChecker(fakePinger{}).Check(ctx).Status)

	res := NewRedisChecker(fakePinger{err: errors.New("connection refused")}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "connection refused")

	res = NewRedisChecker(fakePinger{open: true}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestManagerAggregation(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(NewBreakerChecker("review_transport", trippedBreaker(t))))
	require.NoError(t, m.RegisterChecker(NewRedisChecker(fakePinger{err: errors.New("down")})))
	assert.Error(t, m.RegisterChecker(NewRedisChecker(fakePinger{})))

	d := m.GetDetailedHealth(context.Background())
	assert.Equal(t, StatusDegraded, d.Overall.Status)
	assert.True(t, d.Overall.Ready)
	assert.Equal(t, 2, d.Summary.Total)
	assert.Equal(t, 1, d.Summary.Degraded)
	assert.Equal(t, 1, d.Summary.Unhealthy)
	assert.Len(t, m.LastResults(), 2)
}

func TestManagerCriticalFailure(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.RegisterChecker(FuncChecker{
		CheckName: "config",
		Critical:  true,
		Fn: func(context.Context) CheckResult {
			return CheckResult{Status: StatusUnhealthy, Error: "invalid"}
		},
	}))
	assert.False(t, m.IsReady(context.Background()))
	assert.True(t, m.IsLive(context.Background()))
}

func TestManagerRecoversPanickingCheck(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.RegisterChecker(FuncChecker{
		CheckName: "flaky",
		Fn:        func(context.Context) CheckResult { panic("nil map") },
	}))
	d := m.GetDetailedHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, d.Components["flaky"].Status)
	assert.Equal(t, "flaky", d.Components["flaky"].Component)
}

func TestHTTPHandler(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(NewRedisChecker(fakePinger{})))
	mux := http.NewServeMux()
	NewHTTPHandler(m, zaptest.NewLogger(t)).RegisterRoutes(mux)

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/health/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
