// SPDX-License-Identifier: GPL-3.0-only

// Package udev reports hot-plug of backlight devices via netlink/udev events.
//
// Two sources are watched: Apple Studio Displays on the USB bus and kernel
// backlight class devices (sysfs). Either one appearing or vanishing means the
// backlight output set changed and must be refreshed.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// USB hot-plug produces bursts of messages; a small buffer overflows with ENOBUFS.
	netlinkBufferSize = 2 * 1024 * 1024

	// removeDebounce suppresses the per-interface REMOVE burst of one USB device.
	removeDebounce = 2 * time.Second

	// removeHistory is how long REMOVE timestamps are kept before cleanup.
	removeHistory = time.Minute
)

const (
	// AppleVendorIDPattern matches Apple's USB vendor ID as the kernel formats it in PRODUCT.
	// Kernels differ on case and leading zero.
	AppleVendorIDPattern = "0?5[aA][cC]"

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID = "1114"

	// SubsystemUSB is the udev subsystem of Studio Display events.
	SubsystemUSB = "usb"

	// SubsystemBacklight is the udev subsystem of kernel backlight devices.
	SubsystemBacklight = "backlight"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a device was connected.
	EventAdd EventType = iota
	// EventRemove indicates a device was disconnected.
	EventRemove
)

func (t EventType) String() string {
	if t == EventAdd {
		return "add"
	}
	return "remove"
}

// Event represents a device hot-plug event.
type Event struct {
	Type      EventType
	Subsystem string
	// Device is the kernel object path of the device.
	Device string
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called after a netlink overflow, when events may have been lost.
type RecoveryHandler func()

// Option configures a Monitor.
type Option func(*Monitor)

// WithBacklightClass also reports kernel backlight class devices.
func WithBacklightClass() Option {
	return func(m *Monitor) {
		m.backlightClass = true
	}
}

// WithClock replaces the clock used for REMOVE debouncing.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor watches for backlight device connect/disconnect events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	backlightClass  bool
	now             func() time.Time
	lastRemoveTime  map[string]time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler, opts ...Option) *Monitor {
	m := &Monitor{
		handler:        handler,
		now:            time.Now,
		lastRemoveTime: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Bool("backlight_class", m.backlightClass).Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher builds the netlink rules for the watched devices.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// PRODUCT is "vendorId/productId/bcdDevice", e.g. "5ac/1114/157". Anchored so
	// that "5ac/11149" does not match.
	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", AppleVendorIDPattern, StudioDisplayProductID)

	for _, action := range []string{"add", "remove"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^" + SubsystemUSB + "$",
				"PRODUCT":   productPattern,
			},
		})
	}

	if m.backlightClass {
		for _, action := range []string{"add", "remove"} {
			action := action
			rules.AddRule(netlink.RuleDefinition{
				Action: &action,
				Env: map[string]string{
					"SUBSYSTEM": "^" + SubsystemBacklight + "$",
				},
			})
		}
	}

	return rules
}

func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery refresh")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize tries SO_RCVBUFFORCE (needs CAP_NET_ADMIN) and falls back to
// SO_RCVBUF, which the kernel caps at net.core.rmem_max.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// go-udev does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounceRemove records a REMOVE for key and reports whether one was already
// seen within removeDebounce.
func (m *Monitor) shouldDebounceRemove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, t := range m.lastRemoveTime {
		if now.Sub(t) > removeHistory {
			delete(m.lastRemoveTime, k)
		}
	}

	last, seen := m.lastRemoveTime[key]
	m.lastRemoveTime[key] = now
	return seen && now.Sub(last) < removeDebounce
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	subsystem := uevent.Env["SUBSYSTEM"]
	if subsystem == SubsystemBacklight {
		m.handleBacklightEvent(uevent)
		return
	}

	// Only the usb_device of an ADD matters, not each usb_interface. REMOVE events
	// may lack DEVTYPE because the device is already gone.
	product := uevent.Env["PRODUCT"]
	if uevent.Action == netlink.ADD && uevent.Env["DEVTYPE"] != "usb_device" {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("product", product).
		Msg("USB device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
		log.Info().Str("product", product).Msg("Apple Studio Display connected")
	case netlink.REMOVE:
		if m.shouldDebounceRemove(product) {
			return
		}
		eventType = EventRemove
		log.Info().Str("product", product).Msg("Apple Studio Display disconnected")
	default:
		return
	}

	m.dispatch(Event{Type: eventType, Subsystem: SubsystemUSB, Device: uevent.KObj})
}

func (m *Monitor) handleBacklightEvent(uevent netlink.UEvent) {
	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
	case netlink.REMOVE:
		eventType = EventRemove
	default:
		return
	}
	log.Info().Str("action", string(uevent.Action)).Str("devpath", uevent.KObj).Msg("Backlight device event")
	m.dispatch(Event{Type: eventType, Subsystem: SubsystemBacklight, Device: uevent.KObj})
}

func (m *Monitor) dispatch(event Event) {
	if m.handler != nil {
		m.handler(event)
	}
}
