package api

import (
	"context"
	"net/http"

	"github.com/radio-control/rigd/internal/command"
	"github.com/radio-control/rigd/internal/telemetry"
)

// OrchestratorPort is the core the handlers call.
type OrchestratorPort = command.OrchestratorPort

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// Compile-time assertions for port conformance
var _ OrchestratorPort = (*command.Orchestrator)(nil)
var _ TelemetryPort = (*telemetry.Hub)(nil)
