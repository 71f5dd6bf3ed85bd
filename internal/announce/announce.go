// Package announce carries the beacon payload to the places that listen
// for it. None of these addresses the radio.
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radio-control/rigd/internal/beacon"
	"github.com/radio-control/rigd/internal/telemetry"
)

// Logger is the logging surface Log needs.
type Logger interface {
	Info(msg string, args ...any)
}

// Log writes every announcement to the service log.
type Log struct {
	Logger Logger
}

func (l Log) Announce(_ context.Context, a beacon.Announcement) error {
	l.Logger.Info("beacon announcement", "payload", a.Payload, "cycle", a.Cycle)
	return nil
}

// EventPublisher is the telemetry surface Hub needs.
type EventPublisher interface {
	PublishType(eventType string, data map[string]interface{}) error
}

// Hub emits a beacon telemetry event per announcement.
type Hub struct {
	Events EventPublisher
}

func (h Hub) Announce(_ context.Context, a beacon.Announcement) error {
	return h.Events.PublishType(telemetry.EventBeacon, map[string]interface{}{
		"payload": a.Payload,
		"cycle":   a.Cycle,
		"ts":      a.At.UTC(),
	})
}

// Publisher sends a payload to a subtopic under the broker prefix.
type Publisher interface {
	PublishContext(ctx context.Context, subtopic string, payload []byte, retained bool) error
}

// DefaultTopic is the subtopic MQTT announcements go to.
const DefaultTopic = "beacon"

// MQTT publishes announcements as JSON.
type MQTT struct {
	Client Publisher
	Topic  string
}

func (m MQTT) Announce(ctx context.Context, a beacon.Announcement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	topic := m.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return m.Client.PublishContext(ctx, topic, body, false)
}

// Multi announces to every member in order. All members are tried; the
// returned error joins their failures.
type Multi []beacon.Announcer

func (m Multi) Announce(ctx context.Context, a beacon.Announcement) error {
	var errs []error
	for _, member := range m {
		if member == nil {
			continue
		}
		if err := member.Announce(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
