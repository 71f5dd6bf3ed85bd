package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "RIGD_CONFIG"

// Load builds the configuration: defaults, then the YAML file at path (or
// $RIGD_CONFIG when path is empty), then RIGD_* environment overrides. The
// result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile merges a YAML file over cfg. Keys absent from the file keep
// their current values.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

type envBinding struct {
	key string
	set func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

// duration accepts Go duration syntax or a bare integer of milliseconds.
func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func bindings(cfg *Config) []envBinding {
	return []envBinding{
		{"RIGD_DEVICE_BINARY", str(&cfg.Device.Binary)},
		{"RIGD_DEVICE_MODEL", integer(&cfg.Device.Model)},
		{"RIGD_DEVICE_PATH", str(&cfg.Device.Path)},
		{"RIGD_DEVICE_BAUD", integer(&cfg.Device.Baud)},
		{"RIGD_DEVICE_RESPONSE_TIMEOUT", duration(&cfg.Device.ResponseTimeout)},
		{"RIGD_DEVICE_PROCESS_TIMEOUT", duration(&cfg.Device.ProcessTimeout)},

		{"RIGD_TIMING_HEARTBEAT_INTERVAL", duration(&cfg.Timing.HeartbeatInterval)},
		{"RIGD_TIMING_HEARTBEAT_JITTER", duration(&cfg.Timing.HeartbeatJitter)},
		{"RIGD_TIMING_COMMAND_READ", duration(&cfg.Timing.CommandTimeoutRead)},
		{"RIGD_TIMING_COMMAND_WRITE", duration(&cfg.Timing.CommandTimeoutWrite)},
		{"RIGD_TIMING_COMMAND_PTT", duration(&cfg.Timing.CommandTimeoutPTT)},
		{"RIGD_TIMING_ACCESS_WAIT", duration(&cfg.Timing.AccessWait)},
		{"RIGD_TIMING_BEACON_STOP_GRACE", duration(&cfg.Timing.BeaconStopGrace)},
		{"RIGD_TIMING_BEACON_ANNOUNCE", duration(&cfg.Timing.BeaconAnnounce)},
		{"RIGD_TIMING_EVENT_BUFFER_SIZE", integer(&cfg.Timing.EventBufferSize)},
		{"RIGD_TIMING_EVENT_BUFFER_RETENTION", duration(&cfg.Timing.EventBufferRetention)},

		{"RIGD_BEACON_INTERVAL", duration(&cfg.Beacon.Interval)},
		{"RIGD_BEACON_PAYLOAD", str(&cfg.Beacon.Payload)},
		{"RIGD_BEACON_AUTOSTART", boolean(&cfg.Beacon.AutoStart)},

		{"RIGD_SERVER_ADDR", str(&cfg.Server.Addr)},

		{"RIGD_AUTH_MODE", str(&cfg.Auth.Mode)},
		{"RIGD_AUTH_TOKEN", str(&cfg.Auth.Token)},
		{"RIGD_AUTH_SECRET", str(&cfg.Auth.Secret)},
		{"RIGD_AUTH_PUBLIC_KEY_FILE", str(&cfg.Auth.PublicKeyFile)},

		{"RIGD_LOG_LEVEL", str(&cfg.Logging.Level)},
		{"RIGD_LOG_FORMAT", str(&cfg.Logging.Format)},
		{"RIGD_LOG_OUTPUT", str(&cfg.Logging.Output)},
		{"RIGD_LOG_FILE", str(&cfg.Logging.File)},

		{"RIGD_AUDIT_ENABLED", boolean(&cfg.Audit.Enabled)},
		{"RIGD_AUDIT_PATH", str(&cfg.Audit.Path)},

		{"RIGD_MQTT_ENABLED", boolean(&cfg.MQTT.Enabled)},
		{"RIGD_MQTT_BROKER", str(&cfg.MQTT.Broker)},
		{"RIGD_MQTT_USERNAME", str(&cfg.MQTT.Username)},
		{"RIGD_MQTT_PASSWORD", str(&cfg.MQTT.Password)},
		{"RIGD_MQTT_TOPIC_PREFIX", str(&cfg.MQTT.TopicPrefix)},

		{"RIGD_METRICS_ENABLED", boolean(&cfg.Metrics.Enabled)},
		{"RIGD_METRICS_URL", str(&cfg.Metrics.URL)},
		{"RIGD_METRICS_TOKEN", str(&cfg.Metrics.Token)},
		{"RIGD_METRICS_ORG", str(&cfg.Metrics.Org)},
		{"RIGD_METRICS_BUCKET", str(&cfg.Metrics.Bucket)},
	}
}

// applyEnvOverrides applies RIGD_* variables. A value that does not parse
// is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range bindings(cfg) {
		val, ok := os.LookupEnv(b.key)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if err := b.set(strings.TrimSpace(val)); err != nil {
			return fmt.Errorf("%s=%q: %w", b.key, val, err)
		}
	}
	return nil
}
