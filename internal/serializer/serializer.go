// Package serializer guarantees that at most one invocation addresses the
// device at any instant, whoever issued it.
package serializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/radio-control/rigd/internal/adapter"
)

// DefaultAccessWait bounds how long a caller queues for the device.
const DefaultAccessWait = 15 * time.Second

// Runner executes one invocation while exclusive access is held.
type Runner func(ctx context.Context, inv adapter.Invocation) adapter.Outcome

// Observer is told about every invocation that reached the gateway.
type Observer interface {
	ObserveInvocation(inv adapter.Invocation, out adapter.Outcome, wait, elapsed time.Duration)
}

// Logger is the logging surface the serializer needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// errReleased is returned by a Runner used after its ticket was released.
var errReleased = errors.New("serializer: ticket already released")

// Serializer owns the single device permit. Waiters are served in FIFO
// order; a caller that cannot acquire within the access wait gets Busy.
type Serializer struct {
	gw       adapter.Gateway
	sem      *semaphore.Weighted
	wait     time.Duration
	observer Observer
	logger   Logger

	queued atomic.Int64
	served atomic.Int64
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithObserver registers an invocation observer.
func WithObserver(o Observer) Option {
	return func(s *Serializer) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Serializer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps gw. A non-positive wait selects DefaultAccessWait.
func New(gw adapter.Gateway, wait time.Duration, opts ...Option) *Serializer {
	if wait <= 0 {
		wait = DefaultAccessWait
	}
	s := &Serializer{
		gw:     gw,
		sem:    semaphore.NewWeighted(1),
		wait:   wait,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ticket is an exclusive permit. Invocations made through one ticket run
// strictly one after another.
type ticket struct {
	s        *Serializer
	mu       sync.Mutex
	released bool
	waited   time.Duration
}

func (s *Serializer) acquire(ctx context.Context) (*ticket, error) {
	start := time.Now()
	s.queued.Add(1)
	defer s.queued.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		waited := time.Since(start)
		s.logger.Warn("device access not granted", "waited", waited, "error", err)
		if ctx.Err() != nil {
			return nil, adapter.Errorf(adapter.ErrBusy, "device access abandoned after %v: %v", waited.Round(time.Millisecond), ctx.Err())
		}
		return nil, adapter.Errorf(adapter.ErrBusy, "device access wait of %v exceeded", s.wait)
	}
	s.served.Add(1)
	return &ticket{s: s, waited: time.Since(start)}, nil
}

func (t *ticket) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.s.sem.Release(1)
}

func (t *ticket) run(ctx context.Context, inv adapter.Invocation) adapter.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return adapter.Failure(adapter.CauseBusy, errReleased.Error())
	}

	start := time.Now()
	out := t.s.gw.Execute(ctx, inv)
	elapsed := time.Since(start)

	if t.s.observer != nil {
		t.s.observer.ObserveInvocation(inv, out, t.waited, elapsed)
	}
	// later invocations under the same ticket did not wait
	t.waited = 0
	t.s.logger.Debug("invocation done", "command", inv.Command(), "outcome", out.Label(), "elapsed", elapsed)
	return out
}

// Execute runs one invocation under exclusive access.
func (s *Serializer) Execute(ctx context.Context, inv adapter.Invocation) adapter.Outcome {
	t, err := s.acquire(ctx)
	if err != nil {
		return adapter.Failure(adapter.CauseBusy, adapter.DetailOf(err))
	}
	defer t.release()
	return t.run(ctx, inv)
}

// Exclusive holds access for the whole of fn. fn may issue several
// invocations through run; they execute sequentially and nothing else
// reaches the device until fn returns. run must not be used after fn
// returns.
func (s *Serializer) Exclusive(ctx context.Context, fn func(run Runner) error) error {
	t, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer t.release()

	if err := fn(t.run); err != nil {
		return fmt.Errorf("exclusive access: %w", err)
	}
	return nil
}

// Stats is a point-in-time view of the serializer.
type Stats struct {
	Queued     int64         `json:"queued"`
	Served     int64         `json:"served"`
	AccessWait time.Duration `json:"accessWait"`
}

// Stats returns current counters.
func (s *Serializer) Stats() Stats {
	return Stats{Queued: s.queued.Load(), Served: s.served.Load(), AccessWait: s.wait}
}
