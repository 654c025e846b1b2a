// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/power"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func defaults(t *testing.T) *Config {
	t.Helper()
	v := New("")
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := defaults(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverHID, cfg.Backlight.Driver)
	assert.Equal(t, "session", cfg.DBus.Bus)
	assert.Equal(t, 500*time.Millisecond, cfg.Proximity.NegativeDebounce)
	assert.Equal(t, 8*time.Second, cfg.Ambient.DarkeningDebounce)
	assert.Equal(t, 16*time.Millisecond, cfg.Transition.FrameInterval)
	assert.True(t, cfg.Ambient.ConservativeDarkening)
	assert.Equal(t, "bright", cfg.InitialRequest.State)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
brightness:
  max: 200
auto_brightness:
  enabled: true
  lux: [10, 100, 1000]
  levels: [20, 100, 200]
proximity:
  negative_debounce: 750ms
backlight:
  driver: sysfs
  name: intel_backlight
mqtt:
  enabled: true
  broker: tcp://broker:1883
initial_request:
  state: dim
  use_proximity_sensor: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(200), cfg.Brightness.Max)
	assert.True(t, cfg.AutoBrightness.Enabled)
	assert.Equal(t, []float64{10, 100, 1000}, cfg.AutoBrightness.Lux)
	assert.Equal(t, []uint32{20, 100, 200}, cfg.AutoBrightness.Levels)
	assert.Equal(t, 750*time.Millisecond, cfg.Proximity.NegativeDebounce)
	assert.Equal(t, DriverSysfs, cfg.Backlight.Driver)
	assert.Equal(t, "intel_backlight", cfg.Backlight.Name)
	assert.Equal(t, "tcp://broker:1883", cfg.BrokerConfig().Broker)
	assert.Equal(t, "displaypowerd", cfg.BrokerConfig().Topic)
	// Untouched keys keep their defaults
	assert.Equal(t, 400*time.Millisecond, cfg.Transition.OffDuration)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "backlight:\n  driver: hid\n")
	t.Setenv("DISPLAYPOWERD_BACKLIGHT_DRIVER", "pwm")
	t.Setenv("DISPLAYPOWERD_BACKLIGHT_PIN", "GPIO18")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPWM, cfg.Backlight.Driver)
	assert.Equal(t, "GPIO18", cfg.Backlight.Pin)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "config.yaml", "backlight:\n  driver: laser\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "laser")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"min above max", func(c *Config) { c.Brightness.Min, c.Brightness.Max = 100, 50 }, "brightness.min"},
		{"negative debounce", func(c *Config) { c.Proximity.NegativeDebounce = -time.Second }, "proximity.negative_debounce"},
		{"zero frame interval", func(c *Config) { c.Transition.FrameInterval = 0 }, "frame_interval"},
		{"sysfs without name", func(c *Config) { c.Backlight.Driver = DriverSysfs }, "backlight.name"},
		{"pwm without pin", func(c *Config) { c.Backlight.Driver = DriverPWM }, "backlight.pin"},
		{"bad bus", func(c *Config) { c.DBus.Bus = "tram" }, "dbus.bus"},
		{"bad latitude", func(c *Config) { c.Twilight.Latitude = 91 }, "twilight"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled, c.MQTT.Broker = true, "" }, "mqtt.broker"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad initial state", func(c *Config) { c.InitialRequest.State = "sideways" }, "initial_request"},
		{"negative ramp", func(c *Config) { c.Ramp.Fast = -1 }, "ramp"},
		{"darkening hysteresis", func(c *Config) { c.Ambient.DarkeningHysteresis = 1 }, "hysteresis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// A malformed curve is left to the mapper, which disables auto-brightness.
func TestValidate_CurveShapeNotFatal(t *testing.T) {
	cfg := defaults(t)
	cfg.AutoBrightness.Enabled = true
	cfg.AutoBrightness.Lux = []float64{100, 10}
	cfg.AutoBrightness.Levels = []uint32{1}
	assert.NoError(t, cfg.Validate())
}

func TestLimits(t *testing.T) {
	device := brightness.Range{Min: 10, Max: 255}

	tests := []struct {
		name     string
		min, max uint32
		want     brightness.Range
	}{
		{"device range", 0, 0, device},
		{"narrowed", 20, 200, brightness.Range{Min: 20, Max: 200}},
		{"clamped to device", 1, 1000, device},
		{"min only", 50, 0, brightness.Range{Min: 50, Max: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			cfg.Brightness.Min, cfg.Brightness.Max = tt.min, tt.max
			assert.Equal(t, tt.want, cfg.Limits(device))
		})
	}
}

func TestPowerConfig(t *testing.T) {
	cfg := defaults(t)
	cfg.Ramp.Fast = 500
	cfg.Brightness.DimLevel = 30
	cfg.AutoBrightness.Enabled = true
	cfg.AutoBrightness.UseTwilight = true
	cfg.Twilight.Enabled = false
	cfg.Proximity.Threshold = 3

	pc := cfg.PowerConfig(brightness.Range{Min: 0, Max: 255})
	assert.Equal(t, 500.0, pc.RampRateFast)
	assert.InDelta(t, 40.0, pc.RampRateSlow, 1e-9)
	assert.Equal(t, uint32(30), pc.DimLevel)
	assert.True(t, pc.AutoBrightness)
	assert.False(t, pc.Gamma.UseTwilight, "twilight gamma needs a location")
	assert.Equal(t, 3.0, pc.Proximity.Threshold)
	assert.Equal(t, 250*time.Millisecond, pc.Transition.OnDuration)
	assert.Equal(t, 16*time.Millisecond, pc.FrameInterval)
}

func TestRequestConfig_Request(t *testing.T) {
	req, err := RequestConfig{State: "dim", AutoBrightnessAdjustment: 5, Responsiveness: 2}.Request(180)
	require.NoError(t, err)
	assert.Equal(t, power.Request{
		ScreenState:              power.ScreenDim,
		ScreenBrightness:         180,
		AutoBrightnessAdjustment: 1,
		Responsiveness:           2,
	}, req)

	req, err = RequestConfig{State: "bright", Brightness: 42}.Request(180)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), req.ScreenBrightness)

	_, err = RequestConfig{State: "nope"}.Request(0)
	assert.Error(t, err)
}
