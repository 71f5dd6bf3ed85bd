package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate enforces configuration rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Device.Endpoint().Validate(); err != nil {
		return fmt.Errorf("device validation failed: %w", err)
	}
	if cfg.Device.Binary == "" {
		return fmt.Errorf("device validation failed: binary must be set")
	}
	if cfg.Device.ProcessTimeout < cfg.Device.ResponseTimeout {
		return fmt.Errorf("device validation failed: process timeout %v must be >= response timeout %v",
			cfg.Device.ProcessTimeout, cfg.Device.ResponseTimeout)
	}

	if err := ValidateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if cfg.Beacon.Interval <= 0 {
		return fmt.Errorf("beacon interval must be positive, got %v", cfg.Beacon.Interval)
	}
	if strings.TrimSpace(cfg.Beacon.Payload) == "" {
		return fmt.Errorf("beacon payload must not be empty")
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr must be set")
	}

	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if cfg.Logging.Output == "file" && cfg.Logging.File == "" {
		return fmt.Errorf("logging output file requires logging.file")
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return fmt.Errorf("audit enabled requires audit.path")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt enabled requires mqtt.broker")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.URL == "" || cfg.Metrics.Bucket == "") {
		return fmt.Errorf("metrics enabled requires metrics.url and metrics.bucket")
	}

	return nil
}

// ValidateTiming checks timing parameters.
func ValidateTiming(t *TimingConfig) error {
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", t.HeartbeatJitter)
	}
	if t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}

	for name, d := range map[string]time.Duration{
		"commandTimeoutRead":  t.CommandTimeoutRead,
		"commandTimeoutWrite": t.CommandTimeoutWrite,
		"commandTimeoutPtt":   t.CommandTimeoutPTT,
		"accessWait":          t.AccessWait,
		"beaconStopGrace":     t.BeaconStopGrace,
		"beaconAnnounce":      t.BeaconAnnounce,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	if t.EventBufferRetention <= 0 {
		return fmt.Errorf("event buffer retention must be positive, got %v", t.EventBufferRetention)
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	a.Mode = strings.ToLower(strings.TrimSpace(a.Mode))
	switch a.Mode {
	case "", AuthNone:
		a.Mode = AuthNone
	case AuthStatic:
		if a.Token == "" {
			return fmt.Errorf("static mode requires auth.token")
		}
	case AuthHS256:
		if len(a.Secret) < 16 {
			return fmt.Errorf("hs256 mode requires auth.secret of at least 16 bytes")
		}
	case AuthRS256:
		if a.PublicKeyFile == "" {
			return fmt.Errorf("rs256 mode requires auth.publicKeyFile")
		}
	default:
		return fmt.Errorf("unknown mode %q", a.Mode)
	}
	return nil
}
