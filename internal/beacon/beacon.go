// Package beacon runs the periodic emergency transmission: key the
// transmitter, announce the payload on a side channel, unkey, sleep.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/protocol"
	"github.com/radio-control/rigd/internal/serializer"
)

const (
	// DefaultInterval is the pause between two beacon cycles.
	DefaultInterval = 10 * time.Second
	// DefaultPayload is announced on every cycle.
	DefaultPayload = "EMERGENCY BEACON: NEED ASSISTANCE"
	// DefaultPTTTimeout bounds each key and unkey invocation.
	DefaultPTTTimeout = 5 * time.Second
	// DefaultAnnounceTimeout bounds the announcement made while keyed.
	DefaultAnnounceTimeout = 2 * time.Second
)

// State is the scheduler state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// MarshalText renders the state as "running" or "stopped".
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Access is the exclusive device access the scheduler needs.
type Access interface {
	Exclusive(ctx context.Context, fn func(run serializer.Runner) error) error
}

// Announcement is what the beacon emits once the transmitter is keyed.
type Announcement struct {
	Payload string    `json:"payload"`
	Cycle   int64     `json:"cycle"`
	At      time.Time `json:"at"`
}

// Announcer carries the payload. It never addresses the device.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Hooks receive scheduler events. They run on the scheduler goroutines and
// must not call Start or Stop.
type Hooks struct {
	// Transmit is called after a successful key (true) or unkey (false).
	Transmit func(keyed bool)
	// StateChanged is called on every state transition. err is set when
	// the transition was caused by a fault.
	StateChanged func(state State, err error)
}

// Logger is the logging surface the scheduler needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type discardAnnouncer struct{}

func (discardAnnouncer) Announce(context.Context, Announcement) error { return nil }

// Config holds the scheduler settings.
type Config struct {
	Endpoint   adapter.Endpoint
	Interval   time.Duration
	Payload    string
	PTTTimeout time.Duration
	// AnnounceTimeout caps the time the transmitter stays keyed waiting on
	// the announcer. A slower announcer is abandoned and the cycle unkeys.
	AnnounceTimeout time.Duration
}

// Fault is a key or unkey failure. It stops the beacon.
type Fault struct {
	Step string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("beacon %s failed: %v", f.Step, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

var errStopped = errors.New("beacon stopped before cycle")

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns at most one beacon goroutine.
type Scheduler struct {
	access    Access
	cfg       Config
	announcer Announcer
	hooks     Hooks
	logger    Logger

	state atomic.Int32

	// mu serializes Start and Stop
	mu   sync.Mutex
	task *task

	cycles    atomic.Int64
	statusMu  sync.Mutex
	lastCycle time.Time
	lastErr   error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAnnouncer sets the side channel for payloads.
func WithAnnouncer(a Announcer) Option {
	return func(s *Scheduler) {
		if a != nil {
			s.announcer = a
		}
	}
}

// WithHooks sets event hooks.
func WithHooks(h Hooks) Option {
	return func(s *Scheduler) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a stopped scheduler.
func New(access Access, cfg Config, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Payload == "" {
		cfg.Payload = DefaultPayload
	}
	if cfg.PTTTimeout <= 0 {
		cfg.PTTTimeout = DefaultPTTTimeout
	}
	if cfg.AnnounceTimeout <= 0 {
		cfg.AnnounceTimeout = DefaultAnnounceTimeout
	}
	s := &Scheduler{
		access:    access,
		cfg:       cfg,
		announcer: discardAnnouncer{},
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) running() bool {
	return s.State() == Running
}

// Start launches the beacon goroutine. It fails with ErrAlreadyRunning if a
// beacon is already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running() {
		return adapter.NewError(adapter.ErrAlreadyRunning, "beacon already running")
	}
	// a previous task may still be finishing its last cycle
	if s.task != nil {
		<-s.task.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.task = t
	s.setLastErr(nil)
	s.state.Store(int32(Running))
	s.notify(Running, nil)
	s.logger.Info("beacon started", "interval", s.cfg.Interval)

	go s.loop(ctx, t)
	return nil
}

// Stop marks the beacon stopped and waits for its goroutine to exit or ctx
// to end. A cycle in progress always completes. Stop fails with
// ErrNotRunning, leaving state untouched, when the beacon is not running.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		s.mu.Unlock()
		return adapter.NewError(adapter.ErrNotRunning, "beacon not running")
	}
	t := s.task
	s.notify(Stopped, nil)
	s.mu.Unlock()

	t.cancel()
	select {
	case <-t.done:
		s.logger.Info("beacon stopped")
		return nil
	case <-ctx.Done():
		return adapter.Errorf(adapter.ErrTimeout, "beacon task still finishing its cycle: %v", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer close(t.done)
	defer t.cancel()

	for s.running() {
		err := s.cycle(ctx)
		var fault *Fault
		switch {
		case err == nil:
		case errors.Is(err, errStopped) || ctx.Err() != nil:
			return
		case errors.As(err, &fault):
			s.fail(fault)
			return
		case errors.Is(err, adapter.ErrBusy):
			s.logger.Warn("beacon cycle skipped", "error", err)
		default:
			s.fail(&Fault{Step: "cycle", Err: err})
			return
		}

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) error {
	return s.access.Exclusive(ctx, func(run serializer.Runner) error {
		if !s.running() {
			return errStopped
		}
		// a cycle that has begun runs to completion even if Stop arrives
		cctx := context.WithoutCancel(ctx)

		if err := s.transmit(cctx, run, protocol.Key()); err != nil {
			// the rig may have keyed despite the failure
			if uerr := s.transmit(cctx, run, protocol.Unkey()); uerr != nil {
				s.logger.Error("beacon unkey after failed key also failed; transmitter may be keyed", "error", uerr)
				err = errors.Join(err, fmt.Errorf("unkey: %w", uerr))
			}
			return &Fault{Step: "key", Err: err}
		}
		s.onTransmit(true)

		a := Announcement{Payload: s.cfg.Payload, Cycle: s.cycles.Add(1), At: time.Now()}
		s.announce(cctx, a)

		if err := s.transmit(cctx, run, protocol.Unkey()); err != nil {
			return &Fault{Step: "unkey", Err: err}
		}
		s.onTransmit(false)

		s.statusMu.Lock()
		s.lastCycle = a.At
		s.statusMu.Unlock()
		return nil
	})
}

// announce runs the announcer for at most AnnounceTimeout. An announcer that
// ignores its context is left to finish on its own goroutine.
func (s *Scheduler) announce(ctx context.Context, a Announcement) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AnnounceTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.announcer.Announce(ctx, a) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("beacon announce failed", "cycle", a.Cycle, "error", err)
		}
	case <-ctx.Done():
		s.logger.Warn("beacon announce abandoned", "cycle", a.Cycle, "timeout", s.cfg.AnnounceTimeout)
	}
}

func (s *Scheduler) transmit(ctx context.Context, run serializer.Runner, op protocol.Operation) error {
	inv, err := protocol.ToInvocation(op, s.cfg.Endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PTTTimeout)
	defer cancel()
	_, err = protocol.Parse(op, run(ctx, inv))
	return err
}

func (s *Scheduler) fail(f *Fault) {
	s.setLastErr(f)
	if s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		s.notify(Stopped, f)
	}
	s.logger.Error("beacon stopped on fault", "step", f.Step, "error", f.Err)
}

func (s *Scheduler) onTransmit(keyed bool) {
	if s.hooks.Transmit != nil {
		s.hooks.Transmit(keyed)
	}
}

func (s *Scheduler) notify(state State, err error) {
	if s.hooks.StateChanged != nil {
		s.hooks.StateChanged(state, err)
	}
}

func (s *Scheduler) setLastErr(err error) {
	s.statusMu.Lock()
	s.lastErr = err
	s.statusMu.Unlock()
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State     State         `json:"state"`
	Interval  time.Duration `json:"intervalNs"`
	Payload   string        `json:"payload"`
	Cycles    int64         `json:"cycles"`
	LastCycle *time.Time    `json:"lastCycle,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

// Status reports the current state and counters.
func (s *Scheduler) Status() Status {
	st := Status{
		State:    s.State(),
		Interval: s.cfg.Interval,
		Payload:  s.cfg.Payload,
		Cycles:   s.cycles.Load(),
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if !s.lastCycle.IsZero() {
		at := s.lastCycle
		st.LastCycle = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
