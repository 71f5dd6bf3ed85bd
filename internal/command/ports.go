package command

import (
	"context"
	"time"

	"github.com/radio-control/rigd/internal/beacon"
	"github.com/radio-control/rigd/internal/protocol"
	"github.com/radio-control/rigd/internal/radio"
	"github.com/radio-control/rigd/internal/serializer"
)

// OrchestratorPort is what the API and CLI need from the core.
type OrchestratorPort interface {
	GetFrequency(ctx context.Context) (int64, error)
	SetFrequency(ctx context.Context, hz int64) error
	GetMode(ctx context.Context) (string, error)
	SetMode(ctx context.Context, mode string, width int) error
	GetPower(ctx context.Context) (float64, error)
	SetPower(ctx context.Context, percent float64) error
	GetVFO(ctx context.Context) (string, error)
	SetVFO(ctx context.Context, vfo string) error
	SetPTT(ctx context.Context, keyed bool) error
	Raw(ctx context.Context, command string) (protocol.Result, error)
	Status(ctx context.Context) Status
	Snapshot() radio.Snapshot

	StartBeacon(ctx context.Context) error
	StopBeacon(ctx context.Context) error
	BeaconStatus() beacon.Status
}

// Device is exclusive access to the transceiver.
type Device interface {
	Exclusive(ctx context.Context, fn func(run serializer.Runner) error) error
}

// Beacon is the scheduler surface the orchestrator drives.
type Beacon interface {
	Start() error
	Stop(ctx context.Context) error
	Status() beacon.Status
}

// EventPublisher receives telemetry events.
type EventPublisher interface {
	PublishType(eventType string, data map[string]interface{}) error
}

// AuditLogger records one entry per operation.
type AuditLogger interface {
	Record(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration)
}

// Logger is the logging surface the orchestrator needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
