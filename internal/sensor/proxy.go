// SPDX-License-Identifier: GPL-3.0-only

package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	// ProxyService is the well-known name of iio-sensor-proxy on the system bus.
	ProxyService = "net.hadess.SensorProxy"

	// ProxyPath is the object path of iio-sensor-proxy.
	ProxyPath dbus.ObjectPath = "/net/hadess/SensorProxy"

	// ProxyInterface is the interface carrying sensor methods and properties.
	ProxyInterface = "net.hadess.SensorProxy"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
)

const (
	// LightMaxRange is the max range reported for the ambient light sensor.
	LightMaxRange = 100000.0

	// ProximityMaxRange is the distance reported for "far". iio-sensor-proxy only
	// exposes a near/far boolean, so near maps to 0 and far to this value.
	ProximityMaxRange = 5.0
)

// caller is the subset of dbus.BusObject used by Proxy.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
}

// Proxy reads ambient light and proximity from iio-sensor-proxy over D-Bus.
type Proxy struct {
	conn *dbus.Conn
	obj  caller
	now  func() time.Time

	mu            sync.Mutex
	lightListener Listener
	proxListener  Listener
	warnedUnit    bool
	signals       chan *dbus.Signal
	done          chan struct{}
	light         *proxySensor
	proximity     *proxySensor
	started       bool
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithProxyClock sets the time source used to stamp samples.
func WithProxyClock(now func() time.Time) ProxyOption {
	return func(p *Proxy) {
		p.now = now
	}
}

// withCaller replaces the bus object; used by tests.
func withCaller(c caller) ProxyOption {
	return func(p *Proxy) {
		p.obj = c
	}
}

// NewProxy creates a Proxy on conn. Call Start before enabling sensors.
func NewProxy(conn *dbus.Conn, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		conn: conn,
		now:  time.Now,
	}
	if conn != nil {
		p.obj = conn.Object(ProxyService, ProxyPath)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.light = &proxySensor{proxy: p, kind: "Light", maxRange: LightMaxRange}
	p.proximity = &proxySensor{proxy: p, kind: "Proximity", maxRange: ProximityMaxRange}
	return p
}

// Start subscribes to property change notifications.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("sensor proxy already started")
	}

	err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(ProxyPath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return fmt.Errorf("failed to add match rule: %w", err)
	}

	p.signals = make(chan *dbus.Signal, 16)
	p.done = make(chan struct{})
	p.conn.Signal(p.signals)
	p.started = true

	go p.processSignals(p.signals, p.done)

	log.Info().Str("service", ProxyService).Msg("Sensor proxy client started")
	return nil
}

// Close unsubscribes and releases any claimed sensors.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	signals, done := p.signals, p.done
	p.mu.Unlock()

	p.light.request(false)
	p.proximity.request(false)
	p.light.wait()
	p.proximity.wait()

	p.conn.RemoveSignal(signals)
	close(done)
	return nil
}

// Light returns the ambient light sensor.
func (p *Proxy) Light() Sensor {
	return p.light
}

// Proximity returns the proximity sensor.
func (p *Proxy) Proximity() Sensor {
	return p.proximity
}

// HasAmbientLight reports whether iio-sensor-proxy found a light sensor.
func (p *Proxy) HasAmbientLight() bool {
	return p.boolProperty("HasAmbientLight")
}

// HasProximity reports whether iio-sensor-proxy found a proximity sensor.
func (p *Proxy) HasProximity() bool {
	return p.boolProperty("HasProximity")
}

func (p *Proxy) boolProperty(name string) bool {
	v, err := p.obj.GetProperty(ProxyInterface + "." + name)
	if err != nil {
		log.Debug().Err(err).Str("property", name).Msg("Failed to read sensor property")
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

func (p *Proxy) processSignals(signals chan *dbus.Signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *Proxy) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Path != ProxyPath || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != ProxyInterface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if v, ok := changed["LightLevel"]; ok {
		p.deliverLight(v)
	}
	if v, ok := changed["ProximityNear"]; ok {
		p.deliverProximity(v)
	}
}

func (p *Proxy) deliverLight(v dbus.Variant) {
	level, ok := v.Value().(float64)
	if !ok {
		return
	}
	p.deliver("Light", Sample{Time: p.now(), Value: level})
}

func (p *Proxy) deliverProximity(v dbus.Variant) {
	near, ok := v.Value().(bool)
	if !ok {
		return
	}
	p.deliver("Proximity", Sample{Time: p.now(), Value: proximityDistance(near)})
}

func (p *Proxy) deliver(kind string, sample Sample) {
	p.mu.Lock()
	var listener Listener
	switch kind {
	case "Light":
		listener = p.lightListener
	case "Proximity":
		listener = p.proxListener
	}
	p.mu.Unlock()

	if listener != nil {
		listener(sample)
	}
}

func proximityDistance(near bool) float64 {
	if near {
		return 0
	}
	return ProximityMaxRange
}

func (p *Proxy) setListener(kind string, listener Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case "Light":
		p.lightListener = listener
	case "Proximity":
		p.proxListener = listener
	}
}

// checkLightUnit warns once when the sensor reports vendor units instead of lux.
func (p *Proxy) checkLightUnit() {
	v, err := p.obj.GetProperty(ProxyInterface + ".LightLevelUnit")
	if err != nil {
		return
	}
	unit, _ := v.Value().(string)

	p.mu.Lock()
	defer p.mu.Unlock()
	if unit != "lux" && !p.warnedUnit {
		p.warnedUnit = true
		log.Warn().Str("unit", unit).Msg("Light sensor does not report lux, auto-brightness curve may be off")
	}
}

// initialSample reads the current value so the first sample does not wait for a change.
func (p *Proxy) initialSample(kind string) (Sample, bool) {
	switch kind {
	case "Light":
		v, err := p.obj.GetProperty(ProxyInterface + ".LightLevel")
		if err != nil {
			return Sample{}, false
		}
		level, ok := v.Value().(float64)
		return Sample{Time: p.now(), Value: level}, ok
	case "Proximity":
		v, err := p.obj.GetProperty(ProxyInterface + ".ProximityNear")
		if err != nil {
			return Sample{}, false
		}
		near, ok := v.Value().(bool)
		return Sample{Time: p.now(), Value: proximityDistance(near)}, ok
	}
	return Sample{}, false
}

// proxySensor claims and releases one sensor type on the proxy.
//
// Claim and release are bus round trips, so they run on their own goroutine and
// Enable and Disable return at once. Only the latest request matters; a claim still
// in flight when Disable arrives is followed by a release.
type proxySensor struct {
	proxy    *Proxy
	kind     string
	maxRange float64

	mu      sync.Mutex
	wanted  bool
	claimed bool
	busy    bool
	idle    chan struct{}
}

var _ Sensor = (*proxySensor)(nil)

// Enable claims the sensor in the background. Claim failures are logged and leave
// the sensor silent; the next Enable retries.
func (s *proxySensor) Enable(listener Listener) error {
	s.proxy.setListener(s.kind, listener)
	s.request(true)
	return nil
}

func (s *proxySensor) Disable() error {
	s.proxy.setListener(s.kind, nil)
	s.request(false)
	return nil
}

func (s *proxySensor) request(want bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wanted = want
	if s.busy || s.wanted == s.claimed {
		return
	}
	s.busy = true
	s.idle = make(chan struct{})
	go s.reconcile(s.idle)
}

// reconcile claims or releases until the sensor matches the latest request.
func (s *proxySensor) reconcile(idle chan struct{}) {
	defer close(idle)

	for {
		s.mu.Lock()
		want := s.wanted
		if want == s.claimed {
			s.busy = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		var err error
		if want {
			err = s.claim()
		} else {
			err = s.release()
		}

		s.mu.Lock()
		if err != nil {
			s.busy = false
			s.mu.Unlock()
			log.Warn().Err(err).Str("sensor", s.kind).Msg("Sensor request failed")
			return
		}
		s.claimed = want
		s.mu.Unlock()
	}
}

func (s *proxySensor) claim() error {
	if err := s.proxy.obj.Call(ProxyInterface+".Claim"+s.kind, 0).Err; err != nil {
		return fmt.Errorf("failed to claim %s sensor: %w", s.kind, err)
	}
	if s.kind == "Light" {
		s.proxy.checkLightUnit()
	}
	if sample, ok := s.proxy.initialSample(s.kind); ok {
		s.proxy.deliver(s.kind, sample)
	}
	log.Debug().Str("sensor", s.kind).Msg("Sensor enabled")
	return nil
}

func (s *proxySensor) release() error {
	if err := s.proxy.obj.Call(ProxyInterface+".Release"+s.kind, 0).Err; err != nil {
		return fmt.Errorf("failed to release %s sensor: %w", s.kind, err)
	}
	log.Debug().Str("sensor", s.kind).Msg("Sensor disabled")
	return nil
}

// wait blocks until no claim or release is in flight.
func (s *proxySensor) wait() {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	if idle != nil {
		<-idle
	}
}

func (s *proxySensor) MaxRange() float64 {
	return s.maxRange
}
