// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/shini4i/displaypowerd/internal/backlight"
	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/config"
	"github.com/shini4i/displaypowerd/internal/dbus"
	"github.com/shini4i/displaypowerd/internal/hid"
	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/power"
	"github.com/shini4i/displaypowerd/internal/sensor"
	"github.com/shini4i/displaypowerd/internal/surface"
	"github.com/shini4i/displaypowerd/internal/telemetry"
	"github.com/shini4i/displaypowerd/internal/transition"
	"github.com/shini4i/displaypowerd/internal/twilight"
	"github.com/shini4i/displaypowerd/internal/udev"
)

// relay forwards controller callbacks to listeners attached after the controller
// was built.
type relay struct {
	mu      sync.RWMutex
	targets []power.Callbacks
}

func (r *relay) attach(cb power.Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, cb)
}

func (r *relay) fanout() power.Callbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return power.Fanout(r.targets...)
}

func (r *relay) OnStateChanged()      { r.fanout().OnStateChanged() }
func (r *relay) OnProximityPositive() { r.fanout().OnProximityPositive() }
func (r *relay) OnProximityNegative() { r.fanout().OnProximityNegative() }

// openBacklight opens the configured backlight. The HID manager is also returned
// when the Studio Display driver is used, for hot-plug refresh and listing.
func openBacklight(cfg config.BacklightConfig) (backlight.Device, *hid.Manager, error) {
	var (
		dev     backlight.Device
		manager *hid.Manager
	)

	switch cfg.Driver {
	case config.DriverHID:
		manager = hid.NewManager()
		if err := manager.RefreshDisplays(); err != nil {
			log.Error().Err(err).Msg("Failed to enumerate displays")
		}
		if count := manager.Count(); count == 0 {
			log.Warn().Msg("No Apple Studio Displays found")
		} else {
			log.Info().Int("count", count).Msg("Found Apple Studio Displays")
		}
		dev = manager
	case config.DriverSysfs:
		s, err := backlight.NewSysfs(cfg.Name)
		if err != nil {
			return nil, nil, err
		}
		dev = s
	case config.DriverPWM:
		frequency := physic.Frequency(cfg.FrequencyHz) * physic.Hertz
		p, err := backlight.NewPWM(cfg.Pin, frequency, brightness.Range{Min: 0, Max: cfg.MaxLevel})
		if err != nil {
			return nil, nil, err
		}
		dev = p
	default:
		return nil, nil, fmt.Errorf("unknown backlight driver %q", cfg.Driver)
	}

	if cfg.PowerLine.Enabled {
		line, err := backlight.NewPowerLine(cfg.PowerLine.Chip, cfg.PowerLine.Offset, cfg.PowerLine.ActiveLow)
		if err != nil {
			return nil, nil, errors.Join(err, dev.Close())
		}
		dev = backlight.NewGated(dev, line)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Uint32("min", dev.Range().Min).
		Uint32("max", dev.Range().Max).
		Bool("power_line", cfg.PowerLine.Enabled).
		Msg("Backlight opened")
	return dev, manager, nil
}

// openSurface returns the transition surface; animations are skipped without one.
func openSurface(cfg config.TransitionConfig) transition.Surface {
	if cfg.Framebuffer == "" {
		return surface.Unavailable{}
	}
	fb, err := surface.NewFramebuffer(cfg.Framebuffer)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Framebuffer).Msg("Framebuffer unavailable, screen transitions disabled")
		return surface.Unavailable{}
	}
	return fb
}

// openSensors connects to iio-sensor-proxy and fills the sensor dependencies.
func openSensors(cfg config.SensorsConfig, deps *power.Deps) (*sensor.Proxy, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := godbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	proxy := sensor.NewProxy(conn)
	if err := proxy.Start(); err != nil {
		return nil, err
	}
	if cfg.Light && proxy.HasAmbientLight() {
		deps.LightSensor = proxy.Light()
	}
	if cfg.Proximity && proxy.HasProximity() {
		deps.ProximitySensor = proxy.Proximity()
	}
	log.Info().
		Bool("light", deps.LightSensor != nil).
		Bool("proximity", deps.ProximitySensor != nil).
		Msg("Sensors configured")
	return proxy, nil
}

// runDaemon wires every component and blocks until ctx is done.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	dev, manager, err := openBacklight(cfg.Backlight)
	if err != nil {
		return fmt.Errorf("failed to open backlight: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backlight")
		}
	}()

	callbacks := &relay{}
	callbackLoop := looper.New(looper.SystemClock{})
	deps := power.Deps{
		Backlight: dev,
		Surface:   openSurface(cfg.Transition),
		Callbacks: callbacks,
		Executor: power.ExecutorFunc(func(fn func()) {
			callbackLoop.Post(fn)
		}),
	}

	proxy, err := openSensors(cfg.Sensors, &deps)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start sensor proxy client (sensors disabled)")
	}
	if proxy != nil {
		defer func() {
			if err := proxy.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close sensor proxy client")
			}
		}()
	}

	var tracker *twilight.Tracker
	if cfg.Twilight.Enabled {
		tracker = twilight.NewTracker(cfg.Twilight.Latitude, cfg.Twilight.Longitude)
		deps.Twilight = tracker
	}

	controller, err := power.NewController(cfg.PowerConfig(dev.Range()), deps)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	var server *dbus.Server
	if cfg.DBus.Enabled {
		opts := []dbus.ServerOption{dbus.WithBus(dbus.Bus(cfg.DBus.Bus))}
		if manager != nil {
			opts = append(opts, dbus.WithDisplayLister(manager))
		}
		server = dbus.NewServer(controller, opts...)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start D-Bus server: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop D-Bus server")
			}
		}()
		callbacks.attach(server)
	}

	if cfg.MQTT.Enabled {
		publisher, err := telemetry.NewRealPublisher(cfg.BrokerConfig())
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to MQTT broker (telemetry disabled)")
		} else {
			reporter := telemetry.NewReporter(publisher, controller)
			callbacks.attach(reporter)
			reporter.Report(telemetry.EventStartup)
			defer func() {
				reporter.Report(telemetry.EventShutdown)
				if err := publisher.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close MQTT publisher")
				}
			}()
		}
	}

	if cfg.Backlight.Hotplug {
		monitor := startHotplug(cfg, manager, server)
		defer func() {
			if err := monitor.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop udev monitor")
			}
		}()
	}

	var wg sync.WaitGroup
	loopCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = callbackLoop.Run(loopCtx)
	}()
	if tracker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tracker.Run(loopCtx, controller.OnTwilightChanged)
		}()
	}

	req, err := cfg.InitialRequest.Request(cfg.Limits(dev.Range()).Max)
	if err != nil {
		return fmt.Errorf("invalid initial request: %w", err)
	}
	controller.RequestPowerState(req, false)
	log.Info().Stringer("request", req).Msg("Initial power state requested")

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Shutting down...")
	return nil
}

// startHotplug watches udev. A nil manager means no USB displays are driven, and
// only backlight class devices are reported.
func startHotplug(cfg *config.Config, manager *hid.Manager, server *dbus.Server) *udev.Monitor {
	var refresher displayRefresher
	if manager != nil {
		refresher = manager
	}
	var notifier displayNotifier = logNotifier{}
	if server != nil {
		notifier = server
	}

	var opts []udev.Option
	if cfg.Backlight.Driver == config.DriverSysfs {
		opts = append(opts, udev.WithBacklightClass())
	}
	monitor := udev.NewMonitor(createHotplugHandler(refresher, notifier), opts...)
	monitor.SetRecoveryHandler(createRecoveryHandler(refresher, notifier))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}
	return monitor
}

// logNotifier reports display changes when D-Bus is disabled.
type logNotifier struct{}

func (logNotifier) EmitDisplayAdded(serial, productName string) {
	log.Info().Str("serial", serial).Str("product", productName).Msg("Display added")
}

func (logNotifier) EmitDisplayRemoved(serial string) {
	log.Info().Str("serial", serial).Msg("Display removed")
}
