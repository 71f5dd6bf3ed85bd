package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/adapter/fake"
	"github.com/radio-control/rigd/internal/audit"
	"github.com/radio-control/rigd/internal/beacon"
	"github.com/radio-control/rigd/internal/config"
	"github.com/radio-control/rigd/internal/protocol"
	"github.com/radio-control/rigd/internal/radio"
	"github.com/radio-control/rigd/internal/serializer"
	"github.com/radio-control/rigd/internal/telemetry"
)

var testEndpoint = adapter.Endpoint{Model: 1022, Device: "/dev/ttyUSB0", Baud: 38400, ResponseTimeout: time.Second}

type event struct {
	typ  string
	data map[string]interface{}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingEvents) PublishType(eventType string, data map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{eventType, data})
	return nil
}

func (r *recordingEvents) ofType(typ string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.typ == typ {
			out = append(out, e)
		}
	}
	return out
}

type auditRecord struct {
	actor  string
	action string
	params map[string]interface{}
	err    error
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (r *recordingAudit) Record(ctx context.Context, action string, params map[string]interface{}, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, auditRecord{audit.ActorFrom(ctx), action, params, err})
}

func (r *recordingAudit) all() []auditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auditRecord(nil), r.records...)
}

type fixture struct {
	rig    *fake.Rig
	ser    *serializer.Serializer
	events *recordingEvents
	audit  *recordingAudit
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rig:    fake.NewRig(),
		events: &recordingEvents{},
		audit:  &recordingAudit{},
	}
	f.ser = serializer.New(f.rig, time.Second)
	f.orch = NewOrchestrator(testEndpoint, f.ser, config.TimingBaseline(), nil,
		WithEvents(f.events), WithAudit(f.audit))
	return f
}

func TestFrequencyRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.SetFrequency(ctx, 14195000); err != nil {
		t.Fatalf("SetFrequency() error = %v", err)
	}
	got, err := f.orch.GetFrequency(ctx)
	if err != nil {
		t.Fatalf("GetFrequency() error = %v", err)
	}
	if got != 14195000 {
		t.Errorf("GetFrequency() = %d, want 14195000", got)
	}

	if cmds := f.rig.Commands(); len(cmds) != 2 || cmds[0] != "F 14195000" || cmds[1] != "f" {
		t.Errorf("commands = %v", cmds)
	}
	if s := f.orch.Snapshot(); s.Frequency == nil || *s.Frequency != 14195000 {
		t.Errorf("Snapshot().Frequency = %v", s.Frequency)
	}
	if evs := f.events.ofType(telemetry.EventFrequency); len(evs) != 1 {
		t.Errorf("frequencyChanged events = %d, want 1", len(evs))
	}
	recs := f.audit.all()
	if len(recs) != 2 || recs[0].action != "setFrequency" || recs[1].action != "getFrequency" {
		t.Errorf("audit = %+v", recs)
	}
}

func TestInvalidArgumentSendsNothing(t *testing.T) {
	tests := []struct {
		name string
		call func(o *Orchestrator) error
	}{
		{"power above range", func(o *Orchestrator) error { return o.SetPower(context.Background(), 150) }},
		{"negative power", func(o *Orchestrator) error { return o.SetPower(context.Background(), -1) }},
		{"zero frequency", func(o *Orchestrator) error { return o.SetFrequency(context.Background(), 0) }},
		{"empty mode", func(o *Orchestrator) error { return o.SetMode(context.Background(), " ", 0) }},
		{"shell in vfo", func(o *Orchestrator) error { return o.SetVFO(context.Background(), "VFOA; reboot") }},
		{"empty raw", func(o *Orchestrator) error { _, err := o.Raw(context.Background(), "  "); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := tt.call(f.orch)
			if !errors.Is(err, adapter.ErrInvalidArgument) {
				t.Errorf("error = %v, want INVALID_ARGUMENT", err)
			}
			if n := f.rig.CallCount(); n != 0 {
				t.Errorf("CallCount() = %d, want 0", n)
			}
			if recs := f.audit.all(); len(recs) != 1 || recs[0].err == nil {
				t.Errorf("audit = %+v, want one failure", recs)
			}
			if evs := f.events.ofType(telemetry.EventFault); len(evs) != 0 {
				t.Errorf("fault events = %d, want 0", len(evs))
			}
		})
	}
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if mode, err := f.orch.GetMode(ctx); err != nil || mode != "USB" {
		t.Errorf("GetMode() = %q, %v", mode, err)
	}
	if pct, err := f.orch.GetPower(ctx); err != nil || pct != 50 {
		t.Errorf("GetPower() = %v, %v, want 50", pct, err)
	}
	if vfo, err := f.orch.GetVFO(ctx); err != nil || vfo != "VFOA" {
		t.Errorf("GetVFO() = %q, %v", vfo, err)
	}
}

func TestWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.SetMode(ctx, "lsb", 1800); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if err := f.orch.SetPower(ctx, 25); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}
	if err := f.orch.SetVFO(ctx, "VFOB"); err != nil {
		t.Fatalf("SetVFO() error = %v", err)
	}
	want := []string{"M LSB 1800", "P 25", "V VFOB"}
	cmds := f.rig.Commands()
	if len(cmds) != len(want) {
		t.Fatalf("commands = %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, cmds[i], want[i])
		}
	}
	s := f.orch.Snapshot()
	if *s.Mode != "LSB" || *s.Power != 25 || *s.VFO != "VFOB" {
		t.Errorf("Snapshot() = mode %v power %v vfo %v", *s.Mode, *s.Power, *s.VFO)
	}
}

func TestInvalidVFOOnExitZeroIsDeviceError(t *testing.T) {
	f := newFixture(t)
	err := f.orch.SetVFO(context.Background(), "VFOZ")
	if !errors.Is(err, adapter.ErrDevice) {
		t.Fatalf("SetVFO() error = %v, want DEVICE_ERROR", err)
	}
	faults := f.events.ofType(telemetry.EventFault)
	if len(faults) != 1 || faults[0].data["code"] != "DEVICE_ERROR" {
		t.Errorf("fault events = %+v", faults)
	}
}

func TestRaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.orch.SetFrequency(ctx, 14195000)

	res, err := f.orch.Raw(ctx, "f")
	if err != nil {
		t.Fatalf("Raw(f) error = %v", err)
	}
	if res.Kind != protocol.ResultFrequency || res.Frequency != 14195000 {
		t.Errorf("Raw(f) = %+v, want frequency 14195000", res)
	}

	_, err = f.orch.Raw(ctx, "bogus")
	if !errors.Is(err, adapter.ErrDevice) || adapter.DetailOf(err) != "rig_set_conf: unsupported" {
		t.Errorf("Raw(bogus) error = %v, want DEVICE_ERROR rig_set_conf: unsupported", err)
	}

	recs := f.audit.all()
	if got := recs[len(recs)-1].params["command"]; got != "bogus" {
		t.Errorf("audit params = %v", recs[len(recs)-1].params)
	}
}

func TestSetPTT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.SetPTT(ctx, true); err != nil {
		t.Fatalf("SetPTT(true) error = %v", err)
	}
	if !f.rig.PTT() || !f.orch.Snapshot().PTT {
		t.Error("PTT not keyed")
	}
	if err := f.orch.SetPTT(ctx, false); err != nil {
		t.Fatalf("SetPTT(false) error = %v", err)
	}
	if f.rig.PTT() {
		t.Error("PTT still keyed")
	}
	if evs := f.events.ofType(telemetry.EventPTT); len(evs) != 2 {
		t.Errorf("ptt events = %d, want 2", len(evs))
	}
}

func TestTimeoutMarksOffline(t *testing.T) {
	f := newFixture(t)
	f.rig.Script("f", adapter.Failure(adapter.CauseTimeout, "no response"))

	_, err := f.orch.GetFrequency(context.Background())
	if !errors.Is(err, adapter.ErrTimeout) {
		t.Fatalf("GetFrequency() error = %v, want TIMEOUT", err)
	}
	if s := f.orch.Snapshot(); s.Status != radio.StatusOffline {
		t.Errorf("Status = %q, want offline", s.Status)
	}
}

func TestBusyWhenDeviceHeld(t *testing.T) {
	f := newFixture(t)
	f.ser = serializer.New(f.rig, 20*time.Millisecond)
	f.orch = NewOrchestrator(testEndpoint, f.ser, config.TimingBaseline(), nil, WithAudit(f.audit))

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = f.ser.Exclusive(context.Background(), func(serializer.Runner) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	if _, err := f.orch.GetFrequency(context.Background()); !errors.Is(err, adapter.ErrBusy) {
		t.Errorf("GetFrequency() error = %v, want BUSY", err)
	}
	if n := f.rig.CallCount(); n != 0 {
		t.Errorf("CallCount() = %d, want 0", n)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.rig.Script("l RFPOWER", adapter.Failure(adapter.CauseNonZeroExit, "level not supported"))

	st := f.orch.Status(context.Background())
	if st.Frequency.Value != int64(14074000) || st.Mode.Value != "USB" || st.VFO.Value != "VFOA" {
		t.Errorf("Status() = %+v", st)
	}
	if st.Power.Value != nil || st.Power.Code != "DEVICE_ERROR" || st.Power.Error != "level not supported" {
		t.Errorf("Power = %+v, want DEVICE_ERROR", st.Power)
	}
	if st.Beacon != nil {
		t.Errorf("Beacon = %+v without a scheduler", st.Beacon)
	}

	recs := f.audit.all()
	if len(recs) != 1 || recs[0].action != "status" || !errors.Is(recs[0].err, adapter.ErrDevice) {
		t.Errorf("audit = %+v, want one status record with device error", recs)
	}
	if n := f.rig.CallCount(); n != 4 {
		t.Errorf("CallCount() = %d, want 4", n)
	}
}

type fakeBeacon struct {
	startErr error
	stopErr  error
	stopCtx  context.Context
	status   beacon.Status
}

func (b *fakeBeacon) Start() error { return b.startErr }
func (b *fakeBeacon) Stop(ctx context.Context) error {
	b.stopCtx = ctx
	return b.stopErr
}
func (b *fakeBeacon) Status() beacon.Status { return b.status }

func TestBeaconControl(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t)
		if err := f.orch.StartBeacon(context.Background()); !errors.Is(err, adapter.ErrNotRunning) {
			t.Errorf("StartBeacon() error = %v", err)
		}
		if st := f.orch.BeaconStatus(); st.State != beacon.Stopped {
			t.Errorf("BeaconStatus() = %+v", st)
		}
	})

	t.Run("start and stop", func(t *testing.T) {
		f := newFixture(t)
		b := &fakeBeacon{status: beacon.Status{State: beacon.Running}}
		f.orch.SetBeacon(b)

		if err := f.orch.StartBeacon(context.Background()); err != nil {
			t.Fatalf("StartBeacon() error = %v", err)
		}
		if err := f.orch.StopBeacon(context.Background()); err != nil {
			t.Fatalf("StopBeacon() error = %v", err)
		}
		if _, ok := b.stopCtx.Deadline(); !ok {
			t.Error("Stop called without the stop grace deadline")
		}
		if st := f.orch.Status(context.Background()); st.Beacon == nil || st.Beacon.State != beacon.Running {
			t.Errorf("Status().Beacon = %+v", st.Beacon)
		}
		recs := f.audit.all()
		if recs[0].action != "beaconStart" || recs[1].action != "beaconStop" {
			t.Errorf("audit = %+v", recs)
		}
	})

	t.Run("errors keep their code", func(t *testing.T) {
		f := newFixture(t)
		f.orch.SetBeacon(&fakeBeacon{
			startErr: adapter.NewError(adapter.ErrAlreadyRunning, "beacon already running"),
			stopErr:  adapter.ErrNotRunning,
		})
		if err := f.orch.StartBeacon(context.Background()); !errors.Is(err, adapter.ErrAlreadyRunning) {
			t.Errorf("StartBeacon() error = %v", err)
		}
		if err := f.orch.StopBeacon(context.Background()); !errors.Is(err, adapter.ErrNotRunning) {
			t.Errorf("StopBeacon() error = %v", err)
		}
	})
}

func TestBeaconHooks(t *testing.T) {
	f := newFixture(t)
	hooks := f.orch.BeaconHooks()

	hooks.Transmit(true)
	if !f.orch.Snapshot().PTT {
		t.Error("PTT not cached after key hook")
	}
	hooks.StateChanged(beacon.Running, nil)
	hooks.StateChanged(beacon.Stopped, &beacon.Fault{Step: "unkey", Err: adapter.NewError(adapter.ErrDevice, "ptt not supported")})

	if evs := f.events.ofType(telemetry.EventBeacon); len(evs) != 2 || evs[1].data["state"] != "stopped" {
		t.Errorf("beacon events = %+v", evs)
	}
	if evs := f.events.ofType(telemetry.EventFault); len(evs) != 1 || evs[0].data["op"] != "beacon" {
		t.Errorf("fault events = %+v", evs)
	}
	recs := f.audit.all()
	if len(recs) != 1 || recs[0].action != "beaconFault" || recs[0].actor != "beacon" || recs[0].params["step"] != "unkey" {
		t.Errorf("audit = %+v", recs)
	}
}

func TestWithRealBeaconNoOverlap(t *testing.T) {
	f := newFixture(t)
	b := beacon.New(f.ser, beacon.Config{Endpoint: testEndpoint, Interval: 5 * time.Millisecond, Payload: "TEST"},
		beacon.WithHooks(f.orch.BeaconHooks()))
	f.orch.SetBeacon(b)

	if err := f.orch.StartBeacon(context.Background()); err != nil {
		t.Fatalf("StartBeacon() error = %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orch.GetFrequency(context.Background())
		}()
	}
	wg.Wait()
	if err := f.orch.StopBeacon(context.Background()); err != nil {
		t.Fatalf("StopBeacon() error = %v", err)
	}

	if f.rig.MaxConcurrent() != 1 || f.rig.Overlaps() != 0 {
		t.Errorf("MaxConcurrent = %d Overlaps = %d, want 1 and 0", f.rig.MaxConcurrent(), f.rig.Overlaps())
	}
	if f.rig.PTT() || f.orch.Snapshot().PTT {
		t.Error("transmitter left keyed after stop")
	}
}
