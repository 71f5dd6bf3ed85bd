package config

import "time"

// TimingConfig groups every timeout and cadence the service uses.
type TimingConfig struct {
	// Telemetry heartbeat
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`

	// Command timeout classes, applied on top of the rigctl process timeout
	CommandTimeoutRead  time.Duration `yaml:"commandTimeoutRead"`
	CommandTimeoutWrite time.Duration `yaml:"commandTimeoutWrite"`
	CommandTimeoutPTT   time.Duration `yaml:"commandTimeoutPtt"`

	// AccessWait bounds how long a request queues for the device before Busy.
	AccessWait time.Duration `yaml:"accessWait"`

	// BeaconStopGrace bounds how long Stop waits for the running cycle.
	BeaconStopGrace time.Duration `yaml:"beaconStopGrace"`
	// BeaconAnnounce caps the keyed wait on the network announcement.
	BeaconAnnounce  time.Duration `yaml:"beaconAnnounce"`

	// Telemetry replay buffer
	EventBufferSize      int           `yaml:"eventBufferSize"`
	EventBufferRetention time.Duration `yaml:"eventBufferRetention"`
}

// TimingBaseline returns the timing defaults.
func TimingBaseline() TimingConfig {
	return TimingConfig{
		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,

		CommandTimeoutRead:  5 * time.Second,
		CommandTimeoutWrite: 10 * time.Second,
		CommandTimeoutPTT:   5 * time.Second,

		AccessWait:      15 * time.Second,
		BeaconStopGrace: 30 * time.Second,
		BeaconAnnounce:  2 * time.Second,

		EventBufferSize:      50,
		EventBufferRetention: time.Hour,
	}
}
