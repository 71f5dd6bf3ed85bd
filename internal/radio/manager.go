package radio

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/protocol"
)

// Device status values.
const (
	StatusUnknown = "unknown"
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Snapshot is the last known transceiver state. Nil fields have never been
// observed.
type Snapshot struct {
	Endpoint  adapter.Endpoint `json:"endpoint"`
	Status    string           `json:"status"`
	Frequency *int64           `json:"frequency"`
	Mode      *string          `json:"mode"`
	Width     *int             `json:"width,omitempty"` // last mode write made through rigd
	Power     *float64         `json:"power"`
	VFO       *string          `json:"vfo"`
	PTT       bool             `json:"ptt"`
	LastSeen  *time.Time       `json:"lastSeen,omitempty"`
	LastError string           `json:"lastError,omitempty"`
}

// Field names reported in a Change.
const (
	FieldFrequency = "frequency"
	FieldMode      = "mode"
	FieldPower     = "power"
	FieldVFO       = "vfo"
	FieldPTT       = "ptt"
	FieldStatus    = "status"
)

// Change describes one field that took a new value.
type Change struct {
	Field string
	Value interface{}
}

// Manager caches the device state observed through successful operations.
type Manager struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewManager creates a cache for ep with nothing observed yet.
func NewManager(ep adapter.Endpoint) *Manager {
	return &Manager{
		snap: Snapshot{Endpoint: ep, Status: StatusUnknown},
		now:  time.Now,
	}
}

// Apply records the effect of a successful operation and returns the
// fields whose value changed.
func (m *Manager) Apply(op protocol.Operation, res protocol.Result) []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []Change
	changes = m.seenLocked(changes)

	if op.Kind == protocol.KindRaw {
		if typed, ok := protocol.RawOperation(op.Command); ok {
			op = typed
		}
	}

	switch op.Kind {
	case protocol.KindSetFrequency:
		changes = m.setFrequency(changes, op.Frequency)
	case protocol.KindSetMode:
		if mode, err := protocol.NormalizeMode(op.Mode); err == nil {
			changes = m.setMode(changes, mode)
			width := op.Width
			m.snap.Width = &width
		}
	case protocol.KindSetPower:
		changes = m.setPower(changes, op.Power)
	case protocol.KindSetVFO:
		changes = m.setVFO(changes, strings.TrimSpace(op.VFO))
	case protocol.KindKey:
		changes = m.setPTT(changes, true)
	case protocol.KindUnkey:
		changes = m.setPTT(changes, false)
	}

	switch res.Kind {
	case protocol.ResultFrequency:
		changes = m.setFrequency(changes, res.Frequency)
	case protocol.ResultMode:
		changes = m.setMode(changes, res.Mode)
	case protocol.ResultPower:
		changes = m.setPower(changes, res.Power)
	case protocol.ResultVFO:
		changes = m.setVFO(changes, res.VFO)
	}
	return changes
}

// Fail records a failed operation. Launch and timeout failures mark the
// device offline; other failures mean it answered.
func (m *Manager) Fail(err error) []Change {
	if err == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.LastError = err.Error()
	switch {
	case errors.Is(err, adapter.ErrLaunch), errors.Is(err, adapter.ErrTimeout):
		return m.setStatus(nil, StatusOffline)
	case errors.Is(err, adapter.ErrDevice), errors.Is(err, adapter.ErrProtocol):
		return m.seenLocked(nil)
	}
	return nil
}

// SetPTT records the transmitter state reported by the beacon.
func (m *Manager) SetPTT(keyed bool) []Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPTT(m.seenLocked(nil), keyed)
}

// Snapshot returns a copy of the cached state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snap
	s.Frequency = clone(s.Frequency)
	s.Mode = clone(s.Mode)
	s.Width = clone(s.Width)
	s.Power = clone(s.Power)
	s.VFO = clone(s.VFO)
	s.LastSeen = clone(s.LastSeen)
	return s
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Caller holds m.mu for all helpers below.

func (m *Manager) seenLocked(changes []Change) []Change {
	now := m.now()
	m.snap.LastSeen = &now
	return m.setStatus(changes, StatusOnline)
}

func (m *Manager) setStatus(changes []Change, status string) []Change {
	if m.snap.Status == status {
		return changes
	}
	m.snap.Status = status
	return append(changes, Change{Field: FieldStatus, Value: status})
}

func (m *Manager) setFrequency(changes []Change, hz int64) []Change {
	if m.snap.Frequency != nil && *m.snap.Frequency == hz {
		return changes
	}
	m.snap.Frequency = &hz
	return append(changes, Change{Field: FieldFrequency, Value: hz})
}

func (m *Manager) setMode(changes []Change, mode string) []Change {
	if m.snap.Mode != nil && *m.snap.Mode == mode {
		return changes
	}
	m.snap.Mode = &mode
	return append(changes, Change{Field: FieldMode, Value: mode})
}

func (m *Manager) setPower(changes []Change, pct float64) []Change {
	if m.snap.Power != nil && *m.snap.Power == pct {
		return changes
	}
	m.snap.Power = &pct
	return append(changes, Change{Field: FieldPower, Value: pct})
}

func (m *Manager) setVFO(changes []Change, vfo string) []Change {
	if m.snap.VFO != nil && *m.snap.VFO == vfo {
		return changes
	}
	m.snap.VFO = &vfo
	return append(changes, Change{Field: FieldVFO, Value: vfo})
}

func (m *Manager) setPTT(changes []Change, keyed bool) []Change {
	if m.snap.PTT == keyed {
		return changes
	}
	m.snap.PTT = keyed
	return append(changes, Change{Field: FieldPTT, Value: keyed})
}
