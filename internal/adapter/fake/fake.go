// Package fake provides an in-memory rig that speaks the rigctl command
// tokens, for tests that must not touch hardware.
package fake

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
)

// Call records one invocation seen by the rig.
type Call struct {
	Tokens []string
	Start  time.Time
	End    time.Time
}

// Command returns the call tokens joined by spaces.
func (c Call) Command() string {
	return strings.Join(c.Tokens, " ")
}

// Rig is a fake transceiver. It is safe for concurrent use and records
// every call interval so tests can assert that no two calls overlapped.
type Rig struct {
	mu sync.Mutex

	frequency int64
	mode      string
	width     int
	level     float64 // RFPOWER, 0..1
	vfo       string
	ptt       bool

	delay    time.Duration
	scripted map[string][]adapter.Outcome
	calls    []Call

	active     int
	maxActive  int
	overlapped int
}

var _ adapter.Gateway = (*Rig)(nil)

// NewRig returns a rig tuned to 14.074 MHz USB, half power, VFOA.
func NewRig() *Rig {
	return &Rig{
		frequency: 14074000,
		mode:      "USB",
		width:     2400,
		level:     0.5,
		vfo:       "VFOA",
		scripted:  make(map[string][]adapter.Outcome),
	}
}

// SetDelay makes every call take at least d.
func (r *Rig) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Script queues outcomes for the exact command (tokens joined by spaces).
// Queued outcomes are consumed in order; when the queue is empty the rig
// falls back to its emulated behaviour.
func (r *Rig) Script(command string, outcomes ...adapter.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripted[command] = append(r.scripted[command], outcomes...)
}

// Execute implements adapter.Gateway.
func (r *Rig) Execute(ctx context.Context, inv adapter.Invocation) adapter.Outcome {
	start := time.Now()

	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlapped++
	}
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	delay := r.delay
	r.mu.Unlock()

	var out adapter.Outcome
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			out = adapter.Failure(adapter.CauseTimeout, "no response: "+ctx.Err().Error())
		case <-timer.C:
		}
	}

	r.mu.Lock()
	if out.Cause == adapter.CauseNone {
		out = r.respond(inv.Tokens)
	}
	r.active--
	r.calls = append(r.calls, Call{
		Tokens: append([]string(nil), inv.Tokens...),
		Start:  start,
		End:    time.Now(),
	})
	r.mu.Unlock()

	return out
}

// respond emulates the rig. Caller holds r.mu.
func (r *Rig) respond(tokens []string) adapter.Outcome {
	command := strings.Join(tokens, " ")
	if queue := r.scripted[command]; len(queue) > 0 {
		r.scripted[command] = queue[1:]
		return queue[0]
	}
	if len(tokens) == 0 {
		return adapter.Failure(adapter.CauseNonZeroExit, "no command")
	}

	args := tokens[1:]
	switch tokens[0] {
	case "f":
		return adapter.Success(strconv.FormatInt(r.frequency, 10))
	case "F":
		if len(args) != 1 {
			return invalid(command)
		}
		hz, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || hz <= 0 {
			return invalid(command)
		}
		r.frequency = hz
		return adapter.Success("")
	case "m":
		return adapter.Success(r.mode + "\n" + strconv.Itoa(r.width))
	case "M":
		if len(args) != 2 {
			return invalid(command)
		}
		width, err := strconv.Atoi(args[1])
		if err != nil {
			return invalid(command)
		}
		r.mode = args[0]
		if width > 0 {
			r.width = width
		}
		return adapter.Success("")
	case "l":
		if len(args) != 1 || args[0] != "RFPOWER" {
			return invalid(command)
		}
		return adapter.Success(strconv.FormatFloat(r.level, 'f', 6, 64))
	case "P":
		if len(args) != 1 {
			return invalid(command)
		}
		pct, err := strconv.ParseFloat(args[0], 64)
		if err != nil || pct < 0 || pct > 100 {
			return invalid(command)
		}
		r.level = pct / 100
		return adapter.Success("")
	case "v":
		return adapter.Success(r.vfo)
	case "V":
		if len(args) != 1 {
			return invalid(command)
		}
		switch args[0] {
		case "VFOA", "VFOB", "VFOC", "currVFO", "MEM", "Main", "Sub":
			r.vfo = args[0]
			return adapter.Success("")
		}
		// rigctl prints VFO errors on stdout and still exits 0
		return adapter.Success("ERROR: invalid vfo")
	case "T":
		if len(args) != 1 || (args[0] != "0" && args[0] != "1") {
			return invalid(command)
		}
		r.ptt = args[0] == "1"
		return adapter.Success("")
	}
	return adapter.Failure(adapter.CauseNonZeroExit, "rig_set_conf: unsupported")
}

func invalid(command string) adapter.Outcome {
	out := adapter.Failure(adapter.CauseNonZeroExit, "invalid arguments: "+command)
	out.ExitCode = 1
	return out
}

// Calls returns a copy of the recorded calls.
func (r *Rig) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns how many invocations reached the rig.
func (r *Rig) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Commands returns the recorded commands in call order.
func (r *Rig) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Command()
	}
	return out
}

// MaxConcurrent returns the highest number of calls in flight at once.
func (r *Rig) MaxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

// Overlaps returns how many calls started while another was in flight.
func (r *Rig) Overlaps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlapped
}

// Frequency returns the current emulated frequency.
func (r *Rig) Frequency() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frequency
}

// PTT reports whether the emulated transmitter is keyed.
func (r *Rig) PTT() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ptt
}

// Reset clears the recorded calls and counters. Rig state is kept.
func (r *Rig) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.maxActive = 0
	r.overlapped = 0
}
