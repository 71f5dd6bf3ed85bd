package cli

import (
	"errors"
	"fmt"

	"github.com/radio-control/rigd/internal/adapter/rigctl"
	"github.com/radio-control/rigd/internal/announce"
	"github.com/radio-control/rigd/internal/audit"
	"github.com/radio-control/rigd/internal/beacon"
	"github.com/radio-control/rigd/internal/buildinfo"
	"github.com/radio-control/rigd/internal/command"
	"github.com/radio-control/rigd/internal/config"
	"github.com/radio-control/rigd/internal/logging"
	"github.com/radio-control/rigd/internal/metrics"
	"github.com/radio-control/rigd/internal/mqtt"
	"github.com/radio-control/rigd/internal/radio"
	"github.com/radio-control/rigd/internal/serializer"
	"github.com/radio-control/rigd/internal/telemetry"
)

// app is the wired core shared by serve and exec.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	audit   *audit.Logger
	metrics *metrics.Recorder
	mqtt    *mqtt.Client

	hub          *telemetry.Hub
	orchestrator *command.Orchestrator
	beacon       *beacon.Scheduler
}

// newApp builds every component from cfg. Optional side channels (metrics,
// MQTT) that fail to connect are logged and left out.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.New(cfg.Logging, buildinfo.Version)}

	var err error
	if cfg.Audit.Enabled {
		a.audit, err = audit.NewLogger(cfg.Audit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}
	}

	gateway := rigctl.New(rigctl.Config{
		Binary:         cfg.Device.Binary,
		ProcessTimeout: cfg.Device.ProcessTimeout,
	}, a.logger.With("component", "rigctl"))

	serOpts := []serializer.Option{serializer.WithLogger(a.logger.With("component", "serializer"))}
	if cfg.Metrics.Enabled {
		a.metrics, err = metrics.Connect(cfg.Metrics, cfg.Device.Model, a.logger)
		if err != nil {
			a.logger.Warn("metrics disabled", "error", err)
		} else {
			serOpts = append(serOpts, serializer.WithObserver(a.metrics))
		}
	}
	device := serializer.New(gateway, cfg.Timing.AccessWait, serOpts...)

	endpoint := cfg.Device.Endpoint()
	state := radio.NewManager(endpoint)
	a.hub = telemetry.NewHub(cfg.Timing, telemetry.WithSnapshot(func() interface{} {
		return state.Snapshot()
	}))

	orchOpts := []command.Option{
		command.WithEvents(a.hub),
		command.WithLogger(a.logger.With("component", "orchestrator")),
	}
	if a.audit != nil {
		orchOpts = append(orchOpts, command.WithAudit(a.audit))
	}
	a.orchestrator = command.NewOrchestrator(endpoint, device, cfg.Timing, state, orchOpts...)

	announcers := announce.Multi{
		announce.Log{Logger: a.logger.With("component", "beacon")},
		announce.Hub{Events: a.hub},
	}
	if cfg.MQTT.Enabled {
		a.mqtt, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			a.logger.Warn("mqtt announcer disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			announcers = append(announcers, announce.MQTT{Client: a.mqtt})
		}
	}

	a.beacon = beacon.New(device, beacon.Config{
		Endpoint:        endpoint,
		Interval:        cfg.Beacon.Interval,
		Payload:         cfg.Beacon.Payload,
		PTTTimeout:      cfg.Timing.CommandTimeoutPTT,
		AnnounceTimeout: cfg.Timing.BeaconAnnounce,
	},
		beacon.WithAnnouncer(announcers),
		beacon.WithHooks(a.orchestrator.BeaconHooks()),
		beacon.WithLogger(a.logger.With("component", "beacon")),
	)
	a.orchestrator.SetBeacon(a.beacon)
	return a, nil
}

// Close releases the side channels. The beacon must already be stopped.
func (a *app) Close() error {
	var errs []error
	if a.hub != nil {
		a.hub.Stop()
	}
	if err := a.mqtt.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	if err := a.metrics.Close(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if err := a.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("logger: %w", err))
	}
	return errors.Join(errs...)
}
