// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/shini4i/displaypowerd/internal/hid"
	"github.com/shini4i/displaypowerd/internal/udev"
)

// settleDelay gives a freshly attached USB device time to enumerate all interfaces
// before HID is accessible.
var settleDelay = 500 * time.Millisecond

// retryBackoff is the linear backoff step between refresh attempts.
var retryBackoff = 500 * time.Millisecond

const refreshRetries = 3

// displayRefresher re-enumerates displays.
type displayRefresher interface {
	ListDisplays() []hid.DeviceInfo
	RefreshDisplays() error
}

// displayNotifier announces display changes.
type displayNotifier interface {
	EmitDisplayAdded(serial, productName string)
	EmitDisplayRemoved(serial string)
}

// displayChanges is the difference between two display snapshots.
type displayChanges struct {
	added   []hid.DeviceInfo
	removed []string
}

// refreshMu serializes display refresh operations to prevent race conditions
// between hotplug handlers and recovery handlers.
var refreshMu sync.Mutex

func getDisplaysSnapshot(manager displayRefresher) map[string]hid.DeviceInfo {
	return lo.SliceToMap(manager.ListDisplays(), func(d hid.DeviceInfo) (string, hid.DeviceInfo) {
		return d.Serial, d
	})
}

func diffDisplays(oldDisplays, newDisplays map[string]hid.DeviceInfo) displayChanges {
	var changes displayChanges
	for serial, info := range newDisplays {
		if _, exists := oldDisplays[serial]; !exists {
			changes.added = append(changes.added, info)
		}
	}
	for serial := range oldDisplays {
		if _, exists := newDisplays[serial]; !exists {
			changes.removed = append(changes.removed, serial)
		}
	}
	return changes
}

func emitDisplayChanges(notifier displayNotifier, changes displayChanges) {
	for _, info := range changes.added {
		notifier.EmitDisplayAdded(info.Serial, info.Product)
	}
	for _, serial := range changes.removed {
		notifier.EmitDisplayRemoved(serial)
	}
}

// refreshDisplaysWithRetry refreshes displays with linear backoff. found is false
// when every attempt succeeded but saw no display; enumeration sometimes misses a
// display that is still attached, so callers must not treat that as a removal.
func refreshDisplaysWithRetry(manager displayRefresher, maxRetries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * retryBackoff
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying display refresh")
			time.Sleep(backoff)
		}

		if err := manager.RefreshDisplays(); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Display refresh failed")
			continue
		}

		if len(manager.ListDisplays()) == 0 {
			lastErr = nil
			continue
		}

		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Msg("Display refresh succeeded after retry")
		}
		return true, nil
	}
	return false, lastErr
}

// refreshAndNotify refreshes the displays and announces what changed. The output
// level is pushed to new displays by the manager itself.
func refreshAndNotify(manager displayRefresher, notifier displayNotifier, reason string) {
	refreshMu.Lock()
	defer refreshMu.Unlock()

	oldDisplays := getDisplaysSnapshot(manager)
	time.Sleep(settleDelay)

	found, err := refreshDisplaysWithRetry(manager, refreshRetries)
	if err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("Failed to refresh displays (all retries exhausted)")
		return
	}
	if !found {
		log.Warn().Str("reason", reason).Msg("No displays found after refresh, keeping previous state")
		return
	}

	changes := diffDisplays(oldDisplays, getDisplaysSnapshot(manager))
	emitDisplayChanges(notifier, changes)
	log.Info().
		Str("reason", reason).
		Int("added", len(changes.added)).
		Int("removed", len(changes.removed)).
		Msg("Display refresh completed")
}

// createHotplugHandler returns an event handler for udev events. USB events
// refresh the Studio Display set; backlight class events are only reported since
// the sysfs backlight is bound by name.
func createHotplugHandler(manager displayRefresher, notifier displayNotifier) udev.EventHandler {
	return func(event udev.Event) {
		if event.Subsystem == udev.SubsystemBacklight {
			log.Info().
				Str("event", event.Type.String()).
				Str("device", event.Device).
				Msg("Backlight device changed")
			return
		}
		if manager == nil {
			return
		}
		refreshAndNotify(manager, notifier, "hotplug "+event.Type.String())
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow recovery.
func createRecoveryHandler(manager displayRefresher, notifier displayNotifier) udev.RecoveryHandler {
	return func() {
		if manager == nil {
			return
		}
		log.Info().Msg("Performing recovery refresh after netlink buffer overflow")
		refreshAndNotify(manager, notifier, "recovery")
	}
}
