package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, fn http.HandlerFunc) (int, report) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var r report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
	return w.Code, r
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing)
	h.AddLivenessCheck("postgres", time.Second, failing("connection refused"))

	code, r := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks start healthy")
	assert.Equal(t, "ok", r.Status)
	assert.Empty(t, r.Checks)

	ctx := context.Background()
	bad := h.liveness[1]
	assert.False(t, bad.run(ctx))
	assert.False(t, bad.run(ctx))
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	assert.True(t, bad.run(ctx))
	code, r = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", r.Status)
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, r.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)

	code, r := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", r.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, r = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", r.Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestThresholds(t *testing.T) {
	var healthy atomic.Bool
	check := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("down")
	}

	h := New(WithThresholds(1, 2))
	h.AddReadinessCheck("postgres", time.Second, check)
	h.SetReady(true)
	p := h.readiness[0]
	ctx := context.Background()

	p.run(ctx)
	assert.False(t, h.IsReady(), "one failure is enough")

	healthy.Store(true)
	p.run(ctx)
	assert.False(t, h.IsReady(), "needs two successes")
	p.run(ctx)
	assert.True(t, h.IsReady())
}

func TestCheckTimeout(t *testing.T) {
	h := New(WithThresholds(1, 1))
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.SetReady(true)

	h.readiness[0].run(context.Background())

	code, r := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), r.Checks["slow"])
}

func TestStartStop(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var calls atomic.Int32
	h := New(WithLogger(zap.New(core)), WithThresholds(1, 1))
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("first call fails")
		}
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()

	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no polling after Stop")

	require.GreaterOrEqual(t, logs.Len(), 2)
	assert.Equal(t, "Check failed", logs.All()[0].Message)
	assert.Equal(t, "Check recovered", logs.All()[1].Message)
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
