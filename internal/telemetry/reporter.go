// SPDX-License-Identifier: GPL-3.0-only

package telemetry

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/power"
)

// StatusSource provides the controller status attached to each event.
type StatusSource interface {
	Status() power.Status
}

// Reporter turns controller callbacks into published events. Publish failures are
// logged and dropped.
type Reporter struct {
	publisher Publisher
	source    StatusSource
	now       func() time.Time
}

var _ power.Callbacks = (*Reporter)(nil)

// NewReporter creates a reporter.
func NewReporter(publisher Publisher, source StatusSource) *Reporter {
	return &Reporter{publisher: publisher, source: source, now: time.Now}
}

// OnStateChanged publishes the settled state.
func (r *Reporter) OnStateChanged() {
	r.Report(EventStateChanged)
}

// OnProximityPositive publishes a proximity event.
func (r *Reporter) OnProximityPositive() {
	r.Report(EventProximityPositive)
}

// OnProximityNegative publishes a proximity event.
func (r *Reporter) OnProximityNegative() {
	r.Report(EventProximityNegative)
}

// Report publishes an event named name with the current status.
func (r *Reporter) Report(name string) {
	event := Event{
		Timestamp: r.now(),
		Name:      name,
		Status:    r.source.Status(),
	}
	if err := r.publisher.Publish(event); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("Failed to publish telemetry")
	}
}
