package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/audit"
	"github.com/radio-control/rigd/internal/beacon"
	"github.com/radio-control/rigd/internal/config"
	"github.com/radio-control/rigd/internal/protocol"
	"github.com/radio-control/rigd/internal/radio"
	"github.com/radio-control/rigd/internal/serializer"
	"github.com/radio-control/rigd/internal/telemetry"
)

// Orchestrator routes domain operations to the device.
type Orchestrator struct {
	endpoint adapter.Endpoint
	device   Device
	timing   config.TimingConfig
	state    *radio.Manager

	events EventPublisher
	audit  AuditLogger
	beacon Beacon
	logger Logger
}

// Compile-time assertion that Orchestrator implements OrchestratorPort
var _ OrchestratorPort = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEvents publishes state changes and faults to p.
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithAudit records every operation to a.
func WithAudit(a AuditLogger) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator for ep. state may be shared with
// other readers; it is created when nil.
func NewOrchestrator(ep adapter.Endpoint, device Device, timing config.TimingConfig, state *radio.Manager, opts ...Option) *Orchestrator {
	if state == nil {
		state = radio.NewManager(ep)
	}
	o := &Orchestrator{
		endpoint: ep,
		device:   device,
		timing:   timing,
		state:    state,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetBeacon attaches the beacon scheduler. The scheduler is built after
// the orchestrator so it can be given BeaconHooks.
func (o *Orchestrator) SetBeacon(b Beacon) {
	o.beacon = b
}

// Execute runs a single operation under exclusive device access.
func (o *Orchestrator) Execute(ctx context.Context, op protocol.Operation) (protocol.Result, error) {
	start := time.Now()

	inv, err := protocol.ToInvocation(op, o.endpoint)
	if err != nil {
		o.logAudit(ctx, op.Kind.String(), op.Params(), err, time.Since(start))
		return protocol.Result{}, err
	}

	var res protocol.Result
	var opErr error
	accessErr := o.device.Exclusive(ctx, func(run serializer.Runner) error {
		res, opErr = o.run(ctx, run, op, inv)
		return nil
	})
	if accessErr != nil {
		opErr = accessErr
		o.fault(op.Kind.String(), accessErr)
	}

	o.logAudit(ctx, op.Kind.String(), op.Params(), opErr, time.Since(start))
	return res, opErr
}

// run executes inv through run and folds the result into the state cache.
// Caller holds exclusive access.
func (o *Orchestrator) run(ctx context.Context, run serializer.Runner, op protocol.Operation, inv adapter.Invocation) (protocol.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeoutFor(op.Kind))
	defer cancel()

	res, err := protocol.Parse(op, run(cctx, inv))
	if err != nil {
		o.publishChanges(o.state.Fail(err))
		o.fault(op.Kind.String(), err)
		return protocol.Result{}, err
	}
	o.publishChanges(o.state.Apply(op, res))
	return res, nil
}

func (o *Orchestrator) timeoutFor(k protocol.Kind) time.Duration {
	var d time.Duration
	switch {
	case k == protocol.KindKey || k == protocol.KindUnkey:
		d = o.timing.CommandTimeoutPTT
	case k.IsRead():
		d = o.timing.CommandTimeoutRead
	default:
		d = o.timing.CommandTimeoutWrite
	}
	if d <= 0 {
		d = o.endpoint.ResponseTimeout + 5*time.Second
	}
	return d
}

// GetFrequency reads the current frequency in Hz.
func (o *Orchestrator) GetFrequency(ctx context.Context) (int64, error) {
	res, err := o.Execute(ctx, protocol.GetFrequency())
	return res.Frequency, err
}

// SetFrequency tunes to hz.
func (o *Orchestrator) SetFrequency(ctx context.Context, hz int64) error {
	_, err := o.Execute(ctx, protocol.SetFrequency(hz))
	return err
}

// GetMode reads the current mode.
func (o *Orchestrator) GetMode(ctx context.Context) (string, error) {
	res, err := o.Execute(ctx, protocol.GetMode())
	return res.Mode, err
}

// SetMode sets mode with passband width; width 0 keeps the rig default.
func (o *Orchestrator) SetMode(ctx context.Context, mode string, width int) error {
	_, err := o.Execute(ctx, protocol.SetModeWidth(mode, width))
	return err
}

// GetPower reads the RF power in percent.
func (o *Orchestrator) GetPower(ctx context.Context) (float64, error) {
	res, err := o.Execute(ctx, protocol.GetPower())
	return res.Power, err
}

// SetPower sets the RF power in percent.
func (o *Orchestrator) SetPower(ctx context.Context, percent float64) error {
	_, err := o.Execute(ctx, protocol.SetPower(percent))
	return err
}

// GetVFO reads the selected VFO.
func (o *Orchestrator) GetVFO(ctx context.Context) (string, error) {
	res, err := o.Execute(ctx, protocol.GetVFO())
	return res.VFO, err
}

// SetVFO selects vfo.
func (o *Orchestrator) SetVFO(ctx context.Context, vfo string) error {
	_, err := o.Execute(ctx, protocol.SetVFO(vfo))
	return err
}

// SetPTT keys or unkeys the transmitter.
func (o *Orchestrator) SetPTT(ctx context.Context, keyed bool) error {
	op := protocol.Unkey()
	if keyed {
		op = protocol.Key()
	}
	_, err := o.Execute(ctx, op)
	return err
}

// Raw passes command text to the device.
func (o *Orchestrator) Raw(ctx context.Context, command string) (protocol.Result, error) {
	return o.Execute(ctx, protocol.Raw(command))
}

// Reading is one field of a live status read.
type Reading struct {
	Value interface{} `json:"value"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

func readingOf(res protocol.Result, err error) Reading {
	if err != nil {
		code := "INTERNAL"
		if c := adapter.CodeOf(err); c != nil {
			code = c.Error()
		}
		return Reading{Code: code, Error: adapter.DetailOf(err)}
	}
	return Reading{Value: res.Value()}
}

// Status is a live read of the main device fields. A field that failed has
// a nil value and its error code.
type Status struct {
	Frequency Reading        `json:"frequency"`
	Mode      Reading        `json:"mode"`
	Power     Reading        `json:"power"`
	VFO       Reading        `json:"vfo"`
	Beacon    *beacon.Status `json:"beacon,omitempty"`
	At        time.Time      `json:"at"`
}

// Status reads frequency, mode, power and VFO in one exclusive hold.
// It never fails as a whole.
func (o *Orchestrator) Status(ctx context.Context) Status {
	start := time.Now()
	ops := []protocol.Operation{protocol.GetFrequency(), protocol.GetMode(), protocol.GetPower(), protocol.GetVFO()}
	readings := make([]Reading, len(ops))

	accessErr := o.device.Exclusive(ctx, func(run serializer.Runner) error {
		for i, op := range ops {
			inv, err := protocol.ToInvocation(op, o.endpoint)
			if err != nil {
				readings[i] = readingOf(protocol.Result{}, err)
				continue
			}
			readings[i] = readingOf(o.run(ctx, run, op, inv))
		}
		return nil
	})

	var failures []error
	if accessErr != nil {
		o.fault("status", accessErr)
		for i := range readings {
			readings[i] = readingOf(protocol.Result{}, accessErr)
		}
		failures = append(failures, accessErr)
	} else {
		for i, r := range readings {
			if r.Code != "" {
				failures = append(failures, fmt.Errorf("%s: %w", ops[i].Kind, errorFor(r)))
			}
		}
	}

	st := Status{
		Frequency: readings[0],
		Mode:      readings[1],
		Power:     readings[2],
		VFO:       readings[3],
		At:        time.Now().UTC(),
	}
	if o.beacon != nil {
		bs := o.beacon.Status()
		st.Beacon = &bs
	}
	o.logAudit(ctx, "status", map[string]interface{}{}, errors.Join(failures...), time.Since(start))
	return st
}

func errorFor(r Reading) error {
	for _, code := range adapter.Codes {
		if code.Error() == r.Code {
			return adapter.NewError(code, r.Error)
		}
	}
	return errors.New(r.Error)
}

// Snapshot returns the cached device state without touching the device.
func (o *Orchestrator) Snapshot() radio.Snapshot {
	return o.state.Snapshot()
}

var errNoBeacon = adapter.NewError(adapter.ErrNotRunning, "beacon not configured")

// StartBeacon starts the beacon scheduler.
func (o *Orchestrator) StartBeacon(ctx context.Context) error {
	start := time.Now()
	err := errNoBeacon
	if o.beacon != nil {
		err = o.beaconErr(o.beacon.Start())
	}
	o.logAudit(ctx, "beaconStart", map[string]interface{}{}, errOrNil(err), time.Since(start))
	return errOrNil(err)
}

// StopBeacon stops the beacon and waits for its task to exit, bounded by
// ctx and the configured stop grace.
func (o *Orchestrator) StopBeacon(ctx context.Context) error {
	start := time.Now()
	err := errNoBeacon
	if o.beacon != nil {
		if o.timing.BeaconStopGrace > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.timing.BeaconStopGrace)
			defer cancel()
		}
		err = o.beaconErr(o.beacon.Stop(ctx))
	}
	o.logAudit(ctx, "beaconStop", map[string]interface{}{}, errOrNil(err), time.Since(start))
	return errOrNil(err)
}

// errOrNil keeps a nil *adapter.Error from becoming a non-nil error.
func errOrNil(err *adapter.Error) error {
	if err == nil {
		return nil
	}
	return err
}

func (o *Orchestrator) beaconErr(err error) *adapter.Error {
	if err == nil {
		return nil
	}
	var ae *adapter.Error
	if errors.As(err, &ae) {
		return ae
	}
	code := adapter.CodeOf(err)
	if code == nil {
		code = adapter.ErrDevice
	}
	return adapter.NewError(code, err.Error())
}

// BeaconStatus reports the scheduler state.
func (o *Orchestrator) BeaconStatus() beacon.Status {
	if o.beacon == nil {
		return beacon.Status{State: beacon.Stopped}
	}
	return o.beacon.Status()
}

// BeaconHooks returns hooks that keep the state cache, telemetry and audit
// in step with the scheduler.
func (o *Orchestrator) BeaconHooks() beacon.Hooks {
	return beacon.Hooks{
		Transmit: func(keyed bool) {
			o.publishChanges(o.state.SetPTT(keyed))
		},
		StateChanged: func(state beacon.State, err error) {
			o.publish(telemetry.EventBeacon, map[string]interface{}{"state": state.String()})
			if err == nil {
				return
			}
			o.fault("beacon", err)
			params := map[string]interface{}{}
			var f *beacon.Fault
			if errors.As(err, &f) {
				params["step"] = f.Step
			}
			o.logAudit(audit.WithActor(context.Background(), "beacon"), "beaconFault", params, err, 0)
		},
	}
}

func (o *Orchestrator) publishChanges(changes []radio.Change) {
	for _, c := range changes {
		switch c.Field {
		case radio.FieldFrequency:
			o.publish(telemetry.EventFrequency, map[string]interface{}{"frequency": c.Value})
		case radio.FieldMode:
			o.publish(telemetry.EventMode, map[string]interface{}{"mode": c.Value})
		case radio.FieldPower:
			o.publish(telemetry.EventPower, map[string]interface{}{"power": c.Value})
		case radio.FieldVFO:
			o.publish(telemetry.EventVFO, map[string]interface{}{"vfo": c.Value})
		case radio.FieldPTT:
			o.publish(telemetry.EventPTT, map[string]interface{}{"ptt": c.Value})
		case radio.FieldStatus:
			o.publish(telemetry.EventStatus, map[string]interface{}{"status": c.Value})
		}
	}
}

func (o *Orchestrator) fault(op string, err error) {
	code := "INTERNAL"
	if c := adapter.CodeOf(err); c != nil {
		code = c.Error()
	}
	o.logger.Warn("operation failed", "op", op, "code", code, "error", err)
	o.publish(telemetry.EventFault, map[string]interface{}{
		"op":      op,
		"code":    code,
		"message": adapter.DetailOf(err),
	})
}

func (o *Orchestrator) publish(eventType string, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	data["ts"] = time.Now().UTC().Format(time.RFC3339)
	if err := o.events.PublishType(eventType, data); err != nil {
		o.logger.Warn("telemetry publish failed", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) logAudit(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration) {
	if o.audit != nil {
		o.audit.Record(ctx, action, params, err, latency)
	}
}
