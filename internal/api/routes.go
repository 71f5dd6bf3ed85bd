package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/auth"
	"github.com/radio-control/rigd/internal/protocol"
)

// BasePath is the mount point of every route.
const BasePath = "/api/v1"

const maxBodyBytes = 64 << 10

// endpoint is one method of a route. An empty scope skips authentication.
type endpoint struct {
	scope  string
	handle http.HandlerFunc
}

// RegisterRoutes registers every v1 endpoint on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.route(mux, "/health", map[string]endpoint{
		http.MethodGet: {handle: s.handleHealth},
	})

	s.route(mux, "/radio/status", map[string]endpoint{
		http.MethodGet: {auth.ScopeRead, s.handleStatus},
	})
	// Self-test is a full live read.
	s.route(mux, "/radio/test", map[string]endpoint{
		http.MethodGet: {auth.ScopeRead, s.handleStatus},
	})
	s.route(mux, "/radio/state", map[string]endpoint{
		http.MethodGet: {auth.ScopeRead, s.handleState},
	})
	s.route(mux, "/radio/frequency", map[string]endpoint{
		http.MethodGet:  {auth.ScopeRead, s.handleGetFrequency},
		http.MethodPost: {auth.ScopeControl, s.handleSetFrequency},
	})
	s.route(mux, "/radio/mode", map[string]endpoint{
		http.MethodGet:  {auth.ScopeRead, s.handleGetMode},
		http.MethodPost: {auth.ScopeControl, s.handleSetMode},
	})
	s.route(mux, "/radio/power", map[string]endpoint{
		http.MethodGet:  {auth.ScopeRead, s.handleGetPower},
		http.MethodPost: {auth.ScopeControl, s.handleSetPower},
	})
	s.route(mux, "/radio/vfo", map[string]endpoint{
		http.MethodGet:  {auth.ScopeRead, s.handleGetVFO},
		http.MethodPost: {auth.ScopeControl, s.handleSetVFO},
	})
	s.route(mux, "/radio/ptt", map[string]endpoint{
		http.MethodPost: {auth.ScopeControl, s.handleSetPTT},
	})
	s.route(mux, "/radio/command", map[string]endpoint{
		http.MethodPost: {auth.ScopeControl, s.handleRaw},
	})

	s.route(mux, "/beacon", map[string]endpoint{
		http.MethodGet: {auth.ScopeRead, s.handleBeaconStatus},
	})
	s.route(mux, "/beacon/start", map[string]endpoint{
		http.MethodPost: {auth.ScopeBeacon, s.handleBeaconStart},
	})
	s.route(mux, "/beacon/stop", map[string]endpoint{
		http.MethodPost: {auth.ScopeBeacon, s.handleBeaconStop},
	})

	s.route(mux, "/telemetry", map[string]endpoint{
		http.MethodGet: {auth.ScopeRead, s.handleTelemetry},
	})
}

// route mounts path with per-method scopes. Other methods get 405.
func (s *Server) route(mux *http.ServeMux, path string, methods map[string]endpoint) {
	allowed := make([]string, 0, len(methods))
	handlers := make(map[string]http.HandlerFunc, len(methods))
	for method, ep := range methods {
		allowed = append(allowed, method)
		h := ep.handle
		if ep.scope != "" {
			h = s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(ep.scope)(h))
		}
		handlers[method] = h
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	mux.HandleFunc(BasePath+path, func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				"Only "+allow+" allowed", nil)
			return
		}
		h(w, r)
	})
}

// decodeJSON strictly decodes one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return false
	}
	return true
}

func missing(w http.ResponseWriter, field string) {
	WriteError(w, http.StatusBadRequest, adapter.ErrInvalidArgument.Error(),
		field+" is required", map[string]string{"field": field})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.orchestrator.Snapshot()
	beacon := s.orchestrator.BeaconStatus()
	WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"uptimeSec": time.Since(s.startTime).Seconds(),
		"version":   s.version,
		"subsystems": map[string]interface{}{
			"radio":     snap.Status,
			"beacon":    beacon.State,
			"telemetry": s.telemetryHub != nil,
			"auth":      s.authMiddleware.Enabled(),
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.orchestrator.Status(r.Context()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.orchestrator.Snapshot())
}

func (s *Server) handleGetFrequency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hz, err := s.orchestrator.GetFrequency(ctx)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	mode, err := s.orchestrator.GetMode(ctx)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"frequency": hz, "mode": mode})
}

func (s *Server) handleSetFrequency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frequency *int64 `json:"frequency"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Frequency == nil {
		missing(w, "frequency")
		return
	}
	if err := s.orchestrator.SetFrequency(r.Context(), *req.Frequency); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"frequency": *req.Frequency})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	mode, err := s.orchestrator.GetMode(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	// The mode read does not return a passband, so only the mode is live.
	WriteSuccess(w, map[string]interface{}{"mode": mode})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  *string `json:"mode"`
		Width int     `json:"width"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Mode == nil {
		missing(w, "mode")
		return
	}
	if err := s.orchestrator.SetMode(r.Context(), *req.Mode, req.Width); err != nil {
		writeAPIError(w, err)
		return
	}
	mode, _ := protocol.NormalizeMode(*req.Mode)
	WriteSuccess(w, map[string]interface{}{"mode": mode, "width": req.Width})
}

func (s *Server) handleGetPower(w http.ResponseWriter, r *http.Request) {
	power, err := s.orchestrator.GetPower(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"power": power})
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Power *float64 `json:"power"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Power == nil {
		missing(w, "power")
		return
	}
	if err := s.orchestrator.SetPower(r.Context(), *req.Power); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"power": *req.Power})
}

func (s *Server) handleGetVFO(w http.ResponseWriter, r *http.Request) {
	vfo, err := s.orchestrator.GetVFO(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"vfo": vfo})
}

func (s *Server) handleSetVFO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VFO *string `json:"vfo"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VFO == nil {
		missing(w, "vfo")
		return
	}
	if err := s.orchestrator.SetVFO(r.Context(), *req.VFO); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"vfo": *req.VFO})
}

func (s *Server) handleSetPTT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyed *bool `json:"keyed"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Keyed == nil {
		missing(w, "keyed")
		return
	}
	if err := s.orchestrator.SetPTT(r.Context(), *req.Keyed); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"keyed": *req.Keyed})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command *string `json:"command"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Command == nil {
		missing(w, "command")
		return
	}
	res, err := s.orchestrator.Raw(r.Context(), *req.Command)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"result": res.Value()})
}

func (s *Server) handleBeaconStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.orchestrator.BeaconStatus())
}

func (s *Server) handleBeaconStart(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StartBeacon(r.Context()); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, s.orchestrator.BeaconStatus())
}

func (s *Server) handleBeaconStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StopBeacon(r.Context()); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, s.orchestrator.BeaconStatus())
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry not available", nil)
		return
	}
	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil && !errors.Is(err, r.Context().Err()) {
		s.logger.Warn("telemetry stream ended", "error", err)
	}
}
