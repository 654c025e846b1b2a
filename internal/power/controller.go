// SPDX-License-Identifier: GPL-3.0-only

package power

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/ambient"
	"github.com/shini4i/displaypowerd/internal/backlight"
	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/proximity"
	"github.com/shini4i/displaypowerd/internal/sensor"
	"github.com/shini4i/displaypowerd/internal/transition"
	"github.com/shini4i/displaypowerd/internal/twilight"
)

// ErrNoBacklight is returned when the controller has no backlight device.
var ErrNoBacklight = errors.New("backlight device is required")

// TwilightSource provides the current sunrise/sunset state.
type TwilightSource interface {
	State() twilight.State
}

// Deps are the collaborators of a Controller. Only Backlight is required.
type Deps struct {
	Backlight backlight.Device
	// Surface draws the on/off transition. Without one the screen switches instantly.
	Surface         transition.Surface
	LightSensor     sensor.Sensor
	ProximitySensor sensor.Sensor
	Twilight        TwilightSource
	Callbacks       Callbacks
	// Executor runs Callbacks. Defaults to a new goroutine per callback.
	Executor Executor
}

// Option configures a Controller.
type Option func(*Controller)

// WithLooper runs the controller on l instead of a looper of its own.
func WithLooper(l *looper.Looper) Option {
	return func(c *Controller) {
		c.loop = l
	}
}

// WithInlineModulator writes to the backlight synchronously on the control loop.
func WithInlineModulator() Option {
	return func(c *Controller) {
		c.inlineModulator = true
	}
}

// Status is a snapshot of the controller, taken at the end of each update.
type Status struct {
	Ready                 bool    `json:"ready"`
	ScreenState           string  `json:"screen_state"`
	ScreenOn              bool    `json:"screen_on"`
	Level                 uint32  `json:"level"`
	Transition            string  `json:"transition"`
	AutoBrightness        bool    `json:"auto_brightness"`
	AmbientLux            float64 `json:"ambient_lux"`
	AmbientLuxValid       bool    `json:"ambient_lux_valid"`
	Proximity             string  `json:"proximity"`
	OffBecauseOfProximity bool    `json:"off_because_of_proximity"`
}

// Controller decides screen power and brightness on a single control loop.
//
// RequestPowerState, IsProximitySensorAvailable, OnTwilightChanged, Status and Dump
// may be called from any goroutine. Everything else runs on the loop.
type Controller struct {
	cfg             Config
	loop            *looper.Looper
	frames          *looper.Frames
	callbacks       Callbacks
	executor        Executor
	twilight        TwilightSource
	inlineModulator bool

	lightSensor     sensor.Sensor
	proximitySensor sensor.Sensor
	estimator       *ambient.Estimator
	gate            *proximity.Gate
	mapper          *brightness.Mapper

	state    *DisplayState
	director *transition.Director
	ramp     *brightness.RampAnimator

	mu                     sync.Mutex
	pendingRequest         Request
	hasPendingRequest      bool
	pendingWaitForNegative bool
	pendingRequestChanged  bool
	updateScheduled        bool
	displayReady           bool
	status                 Status

	// Owned by the control loop.
	request               Request
	initialized           bool
	waitingForNegative    bool
	offBecauseOfProximity bool
	proximityEnabled      bool
	proximityFailed       bool
	lightEnabled          bool
	lightFailed           bool
	usingAutoBrightness   bool
	autoLevel             uint32
	autoLevelValid        bool
	autoGamma             float64
	twilightChanged       bool
	updates               uint64
}

// NewController creates a controller. Nothing happens until the first request.
//
// An invalid auto-brightness table does not fail construction: auto-brightness is
// disabled and the manual level of each request is used.
func NewController(cfg Config, deps Deps, opts ...Option) (*Controller, error) {
	if deps.Backlight == nil {
		return nil, ErrNoBacklight
	}

	c := &Controller{
		cfg:             cfg,
		callbacks:       deps.Callbacks,
		executor:        deps.Executor,
		twilight:        deps.Twilight,
		lightSensor:     deps.LightSensor,
		proximitySensor: deps.ProximitySensor,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loop == nil {
		c.loop = looper.New(nil)
	}
	if c.callbacks == nil {
		c.callbacks = CallbackFuncs{}
	}
	if c.executor == nil {
		c.executor = ExecutorFunc(func(fn func()) { go fn() })
	}

	device := deps.Backlight.Range()
	if c.cfg.Limits == (brightness.Range{}) {
		c.cfg.Limits = device
	}

	if cfg.AutoBrightness && c.lightSensor != nil {
		mapper, err := brightness.NewMapper(cfg.Table, device, c.cfg.Limits, cfg.Gamma)
		if err != nil {
			log.Error().Err(err).Msg("Invalid auto-brightness curve, using manual brightness")
		} else {
			c.mapper = mapper
		}
	}

	c.estimator = ambient.NewEstimator(c.loop, cfg.Ambient, c.onAmbientLux)
	if c.proximitySensor != nil {
		c.gate = proximity.NewGate(c.loop, c.proximitySensor.MaxRange(), cfg.Proximity, c.onProximity)
	}

	c.frames = looper.NewFrames(c.loop, cfg.FrameInterval)
	c.state = NewDisplayState(c.loop, c.frames, transition.NewMachine(deps.Surface), deps.Backlight, c.cfg.Limits.Max)
	if c.inlineModulator {
		c.state.modulator = NewInlineModulator(deps.Backlight)
	}
	c.director = transition.NewDirector(c.state, c.frames, c.loop.Now, cfg.Transition, c.scheduleUpdate)
	c.ramp = brightness.NewRampAnimator(c.frames, c.loop.Now, c.state.SetLevel)

	return c, nil
}

// Looper returns the control loop.
func (c *Controller) Looper() *looper.Looper {
	return c.loop
}

// Run drives the control loop until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().
		Bool("auto_brightness", c.mapper != nil).
		Bool("proximity", c.gate != nil).
		Msg("Display power controller started")
	err := c.loop.Run(ctx)
	// The loop has stopped, so the surface is ours to release.
	c.state.DismissBeam()
	return err
}

// RequestPowerState submits req and reports whether the previous request is fully
// applied. When false, OnStateChanged follows once the display settled.
//
// waitForNegativeProximity keeps a screen turned off by proximity off until the
// sensor reported far at least once.
func (c *Controller) RequestPowerState(req Request, waitForNegativeProximity bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	if waitForNegativeProximity && !c.pendingWaitForNegative {
		c.pendingWaitForNegative = true
		changed = true
	}
	if !c.hasPendingRequest || c.pendingRequest != req {
		c.pendingRequest = req
		c.hasPendingRequest = true
		changed = true
	}

	if changed {
		c.displayReady = false
		if !c.pendingRequestChanged {
			c.pendingRequestChanged = true
			c.scheduleUpdateLocked()
		}
	}
	return c.displayReady
}

// IsProximitySensorAvailable reports whether a proximity sensor is configured.
func (c *Controller) IsProximitySensorAvailable() bool {
	return c.proximitySensor != nil
}

// OnTwilightChanged re-evaluates auto-brightness with the new twilight state.
func (c *Controller) OnTwilightChanged() {
	c.loop.Post(func() {
		c.twilightChanged = true
		c.scheduleUpdate()
	})
}

// Status returns the state at the end of the last update.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.status
	status.Ready = c.displayReady
	return status
}

// Dump describes the internal state. It is taken on the control loop, so the loop
// must be running.
func (c *Controller) Dump(ctx context.Context) (string, error) {
	result := make(chan string, 1)
	c.loop.Post(func() {
		var b strings.Builder
		c.dump(&b)
		result <- b.String()
	})

	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return "", fmt.Errorf("failed to dump controller state: %w", ctx.Err())
	}
}

func (c *Controller) scheduleUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleUpdateLocked()
}

func (c *Controller) scheduleUpdateLocked() {
	if c.updateScheduled {
		return
	}
	c.updateScheduled = true
	c.loop.Post(c.updatePowerState)
}

func (c *Controller) initialize() {
	c.state.Start()
	log.Info().Str("request", c.request.String()).Msg("First power request received")
}

func (c *Controller) updatePowerState() {
	c.updates++

	c.mu.Lock()
	c.updateScheduled = false
	if !c.hasPendingRequest {
		c.mu.Unlock()
		return
	}

	mustInitialize := false
	updateAuto := c.twilightChanged
	wasDim := false
	switch {
	case !c.initialized:
		c.request = c.pendingRequest
		c.waitingForNegative = c.pendingWaitForNegative
		c.pendingWaitForNegative = false
		c.pendingRequestChanged = false
		c.initialized = true
		mustInitialize = true
	case c.pendingRequestChanged:
		if c.request.AutoBrightnessAdjustment != c.pendingRequest.AutoBrightnessAdjustment {
			updateAuto = true
		}
		wasDim = c.request.ScreenState == ScreenDim
		c.request = c.pendingRequest
		c.waitingForNegative = c.waitingForNegative || c.pendingWaitForNegative
		c.pendingWaitForNegative = false
		c.pendingRequestChanged = false
		c.displayReady = false
	}
	mustNotify := !c.displayReady
	c.mu.Unlock()

	if mustInitialize {
		c.initialize()
	}
	c.twilightChanged = false

	req := c.request
	c.estimator.SetResponsiveness(req.Responsiveness)
	if c.gate != nil {
		c.gate.SetResponsiveness(req.Responsiveness)
	}

	c.updateProximity(req)

	if c.mapper != nil {
		c.setLightSensorEnabled(req.UseAutoBrightness && req.WantScreenOn(), updateAuto)
	}

	c.updateBrightness(req, wasDim)

	if !c.offBecauseOfProximity {
		c.director.Update(req.WantScreenOn(), req.BlockScreenOn)
	}

	if mustNotify && !c.director.Blocked() && !c.director.Busy() && c.state.WaitUntilClean(c.scheduleUpdate) {
		c.mu.Lock()
		if !c.pendingRequestChanged {
			c.displayReady = true
		}
		c.mu.Unlock()
		log.Debug().Str("request", req.String()).Msg("Display ready")
		c.executor.Execute(c.callbacks.OnStateChanged)
	}

	c.publishStatus()
}

func (c *Controller) updateProximity(req Request) {
	if c.gate == nil {
		c.waitingForNegative = false
		return
	}

	switch {
	case req.UseProximitySensor && req.WantScreenOn():
		c.setProximityEnabled(true)
		if !c.offBecauseOfProximity && c.gate.State() == proximity.Near {
			c.offBecauseOfProximity = true
			log.Info().Msg("Screen off because of proximity")
			c.executor.Execute(c.callbacks.OnProximityPositive)
			c.state.SetScreenOn(false)
		}
	case c.waitingForNegative && c.offBecauseOfProximity && c.gate.State() == proximity.Near && req.WantScreenOn():
		c.setProximityEnabled(true)
	default:
		c.setProximityEnabled(false)
		c.waitingForNegative = false
	}

	if c.offBecauseOfProximity && c.gate.State() != proximity.Near {
		c.offBecauseOfProximity = false
		log.Info().Msg("Proximity cleared")
		c.executor.Execute(c.callbacks.OnProximityNegative)
	}
}

func (c *Controller) updateBrightness(req Request, wasDim bool) {
	if !req.WantScreenOn() {
		c.usingAutoBrightness = false
		return
	}

	var target uint32
	slow := false
	if c.autoLevelValid && c.lightEnabled {
		target = c.autoLevel
		slow = c.usingAutoBrightness
		c.usingAutoBrightness = true
	} else {
		target = req.ScreenBrightness
		c.usingAutoBrightness = false
	}

	if req.ScreenState == ScreenDim {
		dim := min(int64(target)-int64(c.cfg.DimMinimumReduction), int64(c.cfg.DimLevel))
		target = c.cfg.Limits.ClampInt(dim)
		slow = false
	} else if wasDim {
		slow = false
	}

	rate := c.cfg.RampRateFast
	if slow {
		rate = c.cfg.RampRateSlow
	}
	if c.ramp.AnimateTo(c.cfg.Limits.Clamp(target), rate) {
		log.Debug().Uint32("target", c.ramp.Target()).Float64("rate", rate).Msg("Brightness target changed")
	}
}

func (c *Controller) setProximityEnabled(enable bool) {
	if enable == c.proximityEnabled {
		return
	}

	if !enable {
		c.proximityEnabled = false
		if err := c.proximitySensor.Disable(); err != nil {
			log.Warn().Err(err).Msg("Failed to disable proximity sensor")
		}
		c.gate.Disable()
		return
	}

	if c.proximityFailed {
		return
	}
	c.gate.Enable()
	err := c.proximitySensor.Enable(func(s sensor.Sample) {
		c.loop.Post(func() { c.gate.HandleSample(s) })
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to enable proximity sensor, ignoring proximity")
		c.proximityFailed = true
		c.gate.Disable()
		return
	}
	c.proximityEnabled = true
}

func (c *Controller) setLightSensorEnabled(enable, updateAuto bool) {
	switch {
	case enable && !c.lightEnabled && !c.lightFailed:
		c.estimator.Enable()
		err := c.lightSensor.Enable(func(s sensor.Sample) {
			c.loop.Post(func() { c.estimator.HandleSample(s) })
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to enable light sensor, using manual brightness")
			c.lightFailed = true
			c.estimator.Disable()
			break
		}
		c.lightEnabled = true
		updateAuto = true
	case !enable && c.lightEnabled:
		c.lightEnabled = false
		if err := c.lightSensor.Disable(); err != nil {
			log.Warn().Err(err).Msg("Failed to disable light sensor")
		}
		c.estimator.Disable()
	}

	if updateAuto {
		c.updateAutoBrightness(false)
	}
}

func (c *Controller) onAmbientLux(float64) {
	c.updateAutoBrightness(true)
}

func (c *Controller) onProximity(proximity.State) {
	c.scheduleUpdate()
}

func (c *Controller) updateAutoBrightness(sendUpdate bool) {
	if c.mapper == nil {
		return
	}
	lux, ok := c.estimator.AmbientLux()
	if !ok {
		return
	}

	level, gamma := c.mapper.Map(lux, c.request.AutoBrightnessAdjustment, c.twilightState(), c.loop.Now())
	if c.autoLevelValid && level == c.autoLevel {
		return
	}
	c.autoLevel = level
	c.autoLevelValid = true
	c.autoGamma = gamma
	log.Debug().Float64("lux", lux).Float64("gamma", gamma).Uint32("level", level).Msg("Auto-brightness level changed")
	if sendUpdate {
		c.scheduleUpdate()
	}
}

func (c *Controller) twilightState() twilight.State {
	if c.twilight == nil {
		return twilight.State{}
	}
	return c.twilight.State()
}

func (c *Controller) publishStatus() {
	lux, valid := c.estimator.AmbientLux()
	proximityState := "unavailable"
	if c.gate != nil {
		proximityState = c.gate.State().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Status{
		ScreenState:           c.request.ScreenState.String(),
		ScreenOn:              c.state.ScreenOn(),
		Level:                 c.ramp.Target(),
		Transition:            c.director.State().String(),
		AutoBrightness:        c.usingAutoBrightness,
		AmbientLux:            lux,
		AmbientLuxValid:       valid,
		Proximity:             proximityState,
		OffBecauseOfProximity: c.offBecauseOfProximity,
	}
}

func (c *Controller) dump(w io.Writer) {
	c.mu.Lock()
	pending := c.pendingRequest
	pendingChanged := c.pendingRequestChanged
	pendingWait := c.pendingWaitForNegative
	ready := c.displayReady
	c.mu.Unlock()

	fmt.Fprintln(w, "Display power controller:")
	fmt.Fprintf(w, "  request: %s\n", c.request)
	fmt.Fprintf(w, "  pending: %s changed=%t wait_for_negative=%t\n", pending, pendingChanged, pendingWait)
	fmt.Fprintf(w, "  ready=%t updates=%d\n", ready, c.updates)
	fmt.Fprintf(w, "  waiting_for_negative=%t off_because_of_proximity=%t\n", c.waitingForNegative, c.offBecauseOfProximity)
	fmt.Fprintf(w, "  light_enabled=%t using_auto=%t auto_level=%d auto_valid=%t auto_gamma=%.3f\n",
		c.lightEnabled, c.usingAutoBrightness, c.autoLevel, c.autoLevelValid, c.autoGamma)
	fmt.Fprintf(w, "  limits=[%d, %d] dim=%d ramp_fast=%.1f ramp_slow=%.1f\n",
		c.cfg.Limits.Min, c.cfg.Limits.Max, c.cfg.DimLevel, c.cfg.RampRateFast, c.cfg.RampRateSlow)
	fmt.Fprintf(w, "  twilight: %s\n", c.twilightState())
	if c.mapper != nil {
		fmt.Fprintf(w, "  mapper: %s\n", c.mapper)
	} else {
		fmt.Fprintln(w, "  mapper: disabled")
	}

	c.estimator.Dump(w)
	if c.gate != nil {
		c.gate.Dump(w)
	}
	c.ramp.Dump(w)
	c.director.Dump(w)
	c.state.Dump(w)
}
