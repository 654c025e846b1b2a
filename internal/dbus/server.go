// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the display power controller on D-Bus.
package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/shini4i/displaypowerd/internal/hid"
	"github.com/shini4i/displaypowerd/internal/power"
)

// ErrRateLimitExceeded is returned when power state requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrUnknownBus is returned for a bus name other than session or system.
var ErrUnknownBus = errors.New("unknown bus")

const (
	// rateLimitPerSecond is the maximum number of power state requests per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for power state requests.
	rateLimitBurst = 5

	// dumpTimeout bounds how long Dump waits for the control loop.
	dumpTimeout = 2 * time.Second
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.DisplayPower"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/DisplayPower"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.DisplayPower"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="RequestPowerState">
      <arg name="request" type="(subdbbd)" direction="in"/>
      <arg name="waitForNegativeProximity" type="b" direction="in"/>
      <arg name="ready" type="b" direction="out"/>
    </method>
    <method name="IsProximitySensorAvailable">
      <arg name="available" type="b" direction="out"/>
    </method>
    <method name="GetStatus">
      <arg name="status" type="s" direction="out"/>
    </method>
    <method name="Dump">
      <arg name="dump" type="s" direction="out"/>
    </method>
    <method name="ListDisplays">
      <arg name="displays" type="a(ss)" direction="out"/>
    </method>
    <signal name="StateChanged">
      <arg name="screenState" type="s"/>
      <arg name="level" type="u"/>
    </signal>
    <signal name="ProximityPositive"/>
    <signal name="ProximityNegative"/>
    <signal name="DisplayAdded">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="DisplayRemoved">
      <arg name="serial" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Bus selects the message bus the service is exported on.
type Bus string

const (
	SessionBus Bus = "session"
	SystemBus  Bus = "system"
)

// Connect opens a new private connection to the bus. The caller must close it.
func (b Bus) Connect() (*dbus.Conn, error) {
	switch b {
	case SessionBus, "":
		return dbus.ConnectSessionBus()
	case SystemBus:
		return dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBus, string(b))
	}
}

// Controller is the part of the power controller the service drives.
// This allows for mocking in tests.
type Controller interface {
	RequestPowerState(req power.Request, waitForNegativeProximity bool) bool
	IsProximitySensorAvailable() bool
	Status() power.Status
	Dump(ctx context.Context) (string, error)
}

// DisplayLister lists connected USB displays. Only set when the backlight is an
// Apple Studio Display.
type DisplayLister interface {
	ListDisplays() []hid.DeviceInfo
}

// PowerRequest is the wire form of power.Request.
// Serializes to D-Bus type (subdbbd).
type PowerRequest struct {
	ScreenState              string
	ScreenBrightness         uint32
	UseAutoBrightness        bool
	AutoBrightnessAdjustment float64
	UseProximitySensor       bool
	BlockScreenOn            bool
	Responsiveness           float64
}

// ToRequest converts the wire form, validating the screen state.
func (r PowerRequest) ToRequest() (power.Request, error) {
	state, err := power.ParseScreenState(r.ScreenState)
	if err != nil {
		return power.Request{}, err
	}
	return power.Request{
		ScreenState:              state,
		ScreenBrightness:         r.ScreenBrightness,
		UseAutoBrightness:        r.UseAutoBrightness,
		AutoBrightnessAdjustment: lo.Clamp(r.AutoBrightnessAdjustment, -1, 1),
		UseProximitySensor:       r.UseProximitySensor,
		BlockScreenOn:            r.BlockScreenOn,
		Responsiveness:           r.Responsiveness,
	}, nil
}

// FromRequest converts a power.Request to its wire form.
func FromRequest(req power.Request) PowerRequest {
	return PowerRequest{
		ScreenState:              req.ScreenState.String(),
		ScreenBrightness:         req.ScreenBrightness,
		UseAutoBrightness:        req.UseAutoBrightness,
		AutoBrightnessAdjustment: req.AutoBrightnessAdjustment,
		UseProximitySensor:       req.UseProximitySensor,
		BlockScreenOn:            req.BlockScreenOn,
		Responsiveness:           req.Responsiveness,
	}
}

// DisplayInfo represents display information returned via D-Bus.
// Serializes to D-Bus type (ss) - a struct containing serial and product name.
type DisplayInfo struct {
	Serial      string
	ProductName string
}

// Server implements the D-Bus service and relays controller callbacks as signals.
//
// Thread safety:
//   - The controller is safe for concurrent use.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - Controller callbacks arrive on the callback executor, never on the control loop.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	bus         Bus
	controller  Controller
	displays    DisplayLister
	rateLimiter *rate.Limiter
}

var _ power.Callbacks = (*Server)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBus selects the bus; the session bus is the default.
func WithBus(bus Bus) ServerOption {
	return func(s *Server) {
		s.bus = bus
	}
}

// WithDisplayLister enables ListDisplays.
func WithDisplayLister(displays DisplayLister) ServerOption {
	return func(s *Server) {
		s.displays = displays
	}
}

// NewServer creates a new D-Bus server for the given controller.
func NewServer(controller Controller, opts ...ServerOption) *Server {
	s := &Server{
		bus:         SessionBus,
		controller:  controller,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the bus and exports the service.
func (s *Server) Start() error {
	conn, err := s.bus.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to %s bus: %w", s.bus, err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Str("bus", string(s.bus)).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// RequestPowerState submits a power request. The reply tells whether the previous
// request was already applied; StateChanged follows otherwise.
func (s *Server) RequestPowerState(req PowerRequest, waitForNegativeProximity bool) (bool, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for RequestPowerState")
		return false, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	request, err := req.ToRequest()
	if err != nil {
		log.Error().Err(err).Msg("Rejected power request")
		return false, dbus.MakeFailedError(err)
	}

	ready := s.controller.RequestPowerState(request, waitForNegativeProximity)
	log.Debug().
		Stringer("request", request).
		Bool("wait_for_negative", waitForNegativeProximity).
		Bool("ready", ready).
		Msg("Power state requested")
	return ready, nil
}

// IsProximitySensorAvailable reports whether the controller has a proximity sensor.
func (s *Server) IsProximitySensorAvailable() (bool, *dbus.Error) {
	return s.controller.IsProximitySensorAvailable(), nil
}

// GetStatus returns the controller status as JSON.
func (s *Server) GetStatus() (string, *dbus.Error) {
	data, err := json.Marshal(s.controller.Status())
	if err != nil {
		return "", dbus.MakeFailedError(fmt.Errorf("failed to encode status: %w", err))
	}
	return string(data), nil
}

// Dump returns a human readable description of the controller state.
func (s *Server) Dump() (string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	out, err := s.controller.Dump(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to dump controller state")
		return "", dbus.MakeFailedError(err)
	}
	return out, nil
}

// ListDisplays returns the connected USB displays.
// Returns an array of structs: [{Serial, ProductName}, ...]
func (s *Server) ListDisplays() ([]DisplayInfo, *dbus.Error) {
	if s.displays == nil {
		return []DisplayInfo{}, nil
	}
	result := lo.Map(s.displays.ListDisplays(), func(d hid.DeviceInfo, _ int) DisplayInfo {
		return DisplayInfo{Serial: d.Serial, ProductName: d.Product}
	})

	log.Debug().Int("count", len(result)).Msg("Listed displays")
	return result, nil
}

// OnStateChanged emits StateChanged with the settled state.
func (s *Server) OnStateChanged() {
	status := s.controller.Status()
	s.emit("StateChanged", status.ScreenState, status.Level)
}

// OnProximityPositive emits ProximityPositive.
func (s *Server) OnProximityPositive() {
	s.emit("ProximityPositive")
}

// OnProximityNegative emits ProximityNegative.
func (s *Server) OnProximityNegative() {
	s.emit("ProximityNegative")
}

// EmitDisplayAdded emits the DisplayAdded signal.
func (s *Server) EmitDisplayAdded(serial, productName string) {
	s.emit("DisplayAdded", serial, productName)
	log.Info().Str("serial", serial).Str("product", productName).Msg("Display added")
}

// EmitDisplayRemoved emits the DisplayRemoved signal.
func (s *Server) EmitDisplayRemoved(serial string) {
	s.emit("DisplayRemoved", serial)
	log.Info().Str("serial", serial).Msg("Display removed")
}

func (s *Server) emit(signal string, args ...any) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, args...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}
