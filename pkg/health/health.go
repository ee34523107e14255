// Package health serves the /livez and /readyz probes of the order service.
//
// Every registered check is polled in the background. A check flips to
// unhealthy after failureThreshold consecutive failures and back after
// successThreshold consecutive successes, so a single slow database ping does
// not take the pod out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports whether a component is healthy.
type CheckFunc func(ctx context.Context) error

// probe is a single registered check. Counters are owned by the polling
// goroutine; healthy and lastErr are read concurrently by the endpoints.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once and reports whether the health state changed.
func (p *probe) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	was := p.healthy.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failureThreshold {
			p.healthy.Store(false)
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks >= p.successThreshold {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

// Option configures Health.
type Option func(h *Health)

// WithLogger logs health state transitions to lg.
func WithLogger(lg *zap.Logger) Option {
	return func(h *Health) { h.lg = lg }
}

// WithThresholds overrides the default failure (3) and success (1)
// thresholds of checks registered afterwards.
func WithThresholds(failure, success int) Option {
	return func(h *Health) {
		if failure > 0 {
			h.failureThreshold = failure
		}
		if success > 0 {
			h.successThreshold = success
		}
	}
}

// Health tracks liveness and readiness of the service.
type Health struct {
	lg               *zap.Logger
	failureThreshold int
	successThreshold int

	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// New creates Health. The service is not ready until SetReady(true).
func New(opts ...Option) *Health {
	h := &Health{
		lg:               zap.NewNop(),
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Health) newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: h.failureThreshold,
		successThreshold: h.successThreshold,
	}
	p.healthy.Store(true)
	return p
}

// AddLivenessCheck registers a check that decides whether the process
// should be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, h.newProbe(name, timeout, check))
}

// AddReadinessCheck registers a check that decides whether the service
// receives traffic, e.g. database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, h.newProbe(name, timeout, check))
}

// Start polls every registered check at interval until ctx is done or Stop
// is called. Each check runs once immediately.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.group, ctx = errgroup.WithContext(ctx)
	for _, p := range slices.Concat(h.liveness, h.readiness) {
		h.group.Go(func() error {
			h.poll(ctx, p, interval)
			return nil
		})
	}
}

func (h *Health) poll(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.run(ctx) {
			if p.healthy.Load() {
				h.lg.Info("Check recovered", zap.String("check", p.name))
			} else {
				h.lg.Warn("Check failed", zap.String("check", p.name), zap.Error(p.err()))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels polling and waits for running checks to return. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, group := h.cancel, h.group
	h.cancel, h.group = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
}

// SetReady toggles manual readiness. It is set after startup and cleared
// when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and all readiness
// checks pass.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.readiness {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := slices.Clone(h.liveness)
	h.mu.RUnlock()

	writeReport(w, failures(probes))
}

// ReadyEndpoint serves /readyz. It also fails while the service is not
// marked ready.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := slices.Clone(h.readiness)
	h.mu.RUnlock()

	failed := failures(probes)
	if !h.ready.Load() {
		failed = append(failed, failure{name: "_readiness", message: "service is not ready"})
	}
	writeReport(w, failed)
}

type failure struct {
	name    string
	message string
}

func failures(probes []*probe) []failure {
	var out []failure
	for _, p := range probes {
		if p.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		out = append(out, failure{name: p.name, message: msg})
	}
	return out
}

// writeReport writes {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name: message}}.
func writeReport(w http.ResponseWriter, failed []failure) {
	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, f := range failed {
					e.Field(f.name, func(e *jx.Encoder) { e.Str(f.message) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
