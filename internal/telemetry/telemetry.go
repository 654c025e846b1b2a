// SPDX-License-Identifier: GPL-3.0-only

// Package telemetry publishes display power events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/shini4i/displaypowerd/internal/power"
)

// DefaultTopic is the topic prefix used when none is configured.
const DefaultTopic = "displaypowerd"

// Event names.
const (
	EventStateChanged      = "STATE_CHANGED"
	EventProximityPositive = "PROXIMITY_POSITIVE"
	EventProximityNegative = "PROXIMITY_NEGATIVE"
	EventStartup           = "STARTUP"
	EventShutdown          = "SHUTDOWN"
)

// Publisher publishes events.
type Publisher interface {
	// Publish sends an event. Failures are returned, never fatal.
	Publish(event Event) error

	// Close disconnects from the broker.
	Close() error
}

// Event is a single published message.
type Event struct {
	Timestamp time.Time
	Name      string
	Status    power.Status
}

// Payload is the JSON message body.
type Payload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	Status    power.Status `json:"status"`
}

// FormatPayload encodes event as JSON.
func FormatPayload(event Event) ([]byte, error) {
	return json.Marshal(Payload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Name,
		Status:    event.Status,
	})
}

// Retained reports whether the broker keeps the last message of this kind.
// State changes are retained so new subscribers see the current state.
func (e Event) Retained() bool {
	return e.Name == EventStateChanged
}

// Topic returns the topic for event under prefix.
func Topic(prefix string, event Event) string {
	switch event.Name {
	case EventStateChanged:
		return prefix + "/state"
	case EventProximityPositive, EventProximityNegative:
		return prefix + "/proximity"
	default:
		return prefix + "/system"
	}
}
