// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the daemon configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides, e.g. DISPLAYPOWERD_BACKLIGHT_DRIVER.
const EnvPrefix = "DISPLAYPOWERD"

// Backlight drivers.
const (
	DriverHID   = "hid"
	DriverSysfs = "sysfs"
	DriverPWM   = "pwm"
)

var (
	drivers   = []string{DriverHID, DriverSysfs, DriverPWM}
	buses     = []string{"session", "system"}
	logLevels = []string{"trace", "debug", "info", "warn", "error"}
)

// searchPaths are tried in order when no explicit file is given.
var searchPaths = []string{"/etc/displaypowerd/", "$HOME/.config/displaypowerd/", "."}

// Config is the full daemon configuration.
type Config struct {
	Brightness     BrightnessConfig     `mapstructure:"brightness"`
	AutoBrightness AutoBrightnessConfig `mapstructure:"auto_brightness"`
	Ambient        AmbientConfig        `mapstructure:"ambient"`
	Proximity      ProximityConfig      `mapstructure:"proximity"`
	Twilight       TwilightConfig       `mapstructure:"twilight"`
	Ramp           RampConfig           `mapstructure:"ramp"`
	Transition     TransitionConfig     `mapstructure:"transition"`
	Backlight      BacklightConfig      `mapstructure:"backlight"`
	Sensors        SensorsConfig        `mapstructure:"sensors"`
	DBus           DBusConfig           `mapstructure:"dbus"`
	MQTT           MQTTConfig           `mapstructure:"mqtt"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	InitialRequest RequestConfig        `mapstructure:"initial_request"`
}

// BrightnessConfig limits the output level. Zero values fall back to the device range.
type BrightnessConfig struct {
	Min                 uint32 `mapstructure:"min"`
	Max                 uint32 `mapstructure:"max"`
	DimLevel            uint32 `mapstructure:"dim_level"`
	DimMinimumReduction uint32 `mapstructure:"dim_minimum_reduction"`
}

// AutoBrightnessConfig is the lux to level curve and its gamma shaping.
// Levels are in device units.
type AutoBrightnessConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Lux              []float64     `mapstructure:"lux"`
	Levels           []uint32      `mapstructure:"levels"`
	MaxGamma         float64       `mapstructure:"max_gamma"`
	UseTwilight      bool          `mapstructure:"use_twilight"`
	MaxTwilightGamma float64       `mapstructure:"max_twilight_gamma"`
	TwilightWindow   time.Duration `mapstructure:"twilight_window"`
}

// AmbientConfig tunes the ambient light estimator.
type AmbientConfig struct {
	ShortTermTimeConstant    time.Duration `mapstructure:"short_term_time_constant"`
	LongTermTimeConstant     time.Duration `mapstructure:"long_term_time_constant"`
	BrighteningHysteresis    float64       `mapstructure:"brightening_hysteresis"`
	DarkeningHysteresis      float64       `mapstructure:"darkening_hysteresis"`
	BrighteningDebounce      time.Duration `mapstructure:"brightening_debounce"`
	BrighteningDebounceFast  time.Duration `mapstructure:"brightening_debounce_fast"`
	DarkeningDebounce        time.Duration `mapstructure:"darkening_debounce"`
	BrighteningFastThreshold float64       `mapstructure:"brightening_fast_threshold"`
	SyntheticRate            time.Duration `mapstructure:"synthetic_rate"`
	WarmUp                   time.Duration `mapstructure:"warm_up"`
	ConservativeDarkening    bool          `mapstructure:"conservative_darkening"`
}

// ProximityConfig tunes the proximity gate.
type ProximityConfig struct {
	Threshold        float64       `mapstructure:"threshold"`
	PositiveDebounce time.Duration `mapstructure:"positive_debounce"`
	NegativeDebounce time.Duration `mapstructure:"negative_debounce"`
}

// TwilightConfig locates the device for sunrise and sunset.
type TwilightConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// RampConfig sets the ramp rates in device units per second. Zero derives the rate
// from the device range.
type RampConfig struct {
	Fast float64 `mapstructure:"fast"`
	Slow float64 `mapstructure:"slow"`
}

// TransitionConfig controls the screen on and off animations.
type TransitionConfig struct {
	AnimateOn     bool          `mapstructure:"animate_on"`
	Fade          bool          `mapstructure:"fade"`
	OnDuration    time.Duration `mapstructure:"on_duration"`
	OffDuration   time.Duration `mapstructure:"off_duration"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	// Framebuffer is the fbdev device drawn on; empty disables animations.
	Framebuffer string `mapstructure:"framebuffer"`
}

// BacklightConfig selects and configures the backlight driver.
type BacklightConfig struct {
	Driver string `mapstructure:"driver"`
	// Name is the /sys/class/backlight entry for the sysfs driver.
	Name string `mapstructure:"name"`
	// Pin, FrequencyHz and MaxLevel configure the pwm driver.
	Pin         string          `mapstructure:"pin"`
	FrequencyHz int64           `mapstructure:"frequency_hz"`
	MaxLevel    uint32          `mapstructure:"max_level"`
	PowerLine   PowerLineConfig `mapstructure:"power_line"`
	// Hotplug watches udev for display and backlight changes.
	Hotplug bool `mapstructure:"hotplug"`
}

// PowerLineConfig is an optional GPIO line switching panel power.
type PowerLineConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Chip      string `mapstructure:"chip"`
	Offset    int    `mapstructure:"offset"`
	ActiveLow bool   `mapstructure:"active_low"`
}

// SensorsConfig enables the iio-sensor-proxy sensors.
type SensorsConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Light     bool `mapstructure:"light"`
	Proximity bool `mapstructure:"proximity"`
}

// DBusConfig configures the control interface.
type DBusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bus     string `mapstructure:"bus"`
}

// MQTTConfig configures telemetry publishing.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
}

// LoggingConfig configures zerolog and file rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RequestConfig describes a power request.
type RequestConfig struct {
	State                    string  `mapstructure:"state"`
	Brightness               uint32  `mapstructure:"brightness"`
	UseAutoBrightness        bool    `mapstructure:"use_auto_brightness"`
	AutoBrightnessAdjustment float64 `mapstructure:"auto_brightness_adjustment"`
	UseProximitySensor       bool    `mapstructure:"use_proximity_sensor"`
	Responsiveness           float64 `mapstructure:"responsiveness"`
}

// SetDefaults registers a default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("brightness.min", 0)
	v.SetDefault("brightness.max", 0)
	v.SetDefault("brightness.dim_level", 0)
	v.SetDefault("brightness.dim_minimum_reduction", 0)

	v.SetDefault("auto_brightness.enabled", false)
	v.SetDefault("auto_brightness.lux", []float64{})
	v.SetDefault("auto_brightness.levels", []uint32{})
	v.SetDefault("auto_brightness.max_gamma", 3.0)
	v.SetDefault("auto_brightness.use_twilight", false)
	v.SetDefault("auto_brightness.max_twilight_gamma", 1.5)
	v.SetDefault("auto_brightness.twilight_window", "2h")

	v.SetDefault("ambient.short_term_time_constant", "1s")
	v.SetDefault("ambient.long_term_time_constant", "5s")
	v.SetDefault("ambient.brightening_hysteresis", 0.10)
	v.SetDefault("ambient.darkening_hysteresis", 0.20)
	v.SetDefault("ambient.brightening_debounce", "4s")
	v.SetDefault("ambient.brightening_debounce_fast", "1s")
	v.SetDefault("ambient.darkening_debounce", "8s")
	v.SetDefault("ambient.brightening_fast_threshold", 300.0)
	v.SetDefault("ambient.synthetic_rate", "2s")
	v.SetDefault("ambient.warm_up", "0s")
	v.SetDefault("ambient.conservative_darkening", true)

	v.SetDefault("proximity.threshold", 5.0)
	v.SetDefault("proximity.positive_debounce", "0s")
	v.SetDefault("proximity.negative_debounce", "500ms")

	v.SetDefault("twilight.enabled", false)
	v.SetDefault("twilight.latitude", 0.0)
	v.SetDefault("twilight.longitude", 0.0)

	v.SetDefault("ramp.fast", 0.0)
	v.SetDefault("ramp.slow", 0.0)

	v.SetDefault("transition.animate_on", true)
	v.SetDefault("transition.fade", false)
	v.SetDefault("transition.on_duration", "250ms")
	v.SetDefault("transition.off_duration", "400ms")
	v.SetDefault("transition.frame_interval", "16ms")
	v.SetDefault("transition.framebuffer", "")

	v.SetDefault("backlight.driver", DriverHID)
	v.SetDefault("backlight.name", "")
	v.SetDefault("backlight.pin", "")
	v.SetDefault("backlight.frequency_hz", 25000)
	v.SetDefault("backlight.max_level", 255)
	v.SetDefault("backlight.hotplug", true)
	v.SetDefault("backlight.power_line.enabled", false)
	v.SetDefault("backlight.power_line.chip", "gpiochip0")
	v.SetDefault("backlight.power_line.offset", 0)
	v.SetDefault("backlight.power_line.active_low", false)

	v.SetDefault("sensors.enabled", false)
	v.SetDefault("sensors.light", true)
	v.SetDefault("sensors.proximity", true)

	v.SetDefault("dbus.enabled", true)
	v.SetDefault("dbus.bus", "session")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "displaypowerd")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "displaypowerd")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("initial_request.state", "bright")
	v.SetDefault("initial_request.brightness", 0)
	v.SetDefault("initial_request.use_auto_brightness", false)
	v.SetDefault("initial_request.auto_brightness_adjustment", 0.0)
	v.SetDefault("initial_request.use_proximity_sensor", false)
	v.SetDefault("initial_request.responsiveness", 1.0)
}

// New returns a viper instance with defaults, environment overrides and the
// config file location set. path selects an explicit file.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("config")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	return v
}

// Load reads the configuration. A missing file is not an error unless path was
// given explicitly.
func Load(path string) (*Config, error) {
	return load(New(path), path != "")
}

func load(v *viper.Viper, explicit bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Info().Msg("No config file found, using defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with. The shape of the
// auto-brightness curve is checked when the mapper is built instead, so a bad curve
// only disables auto-brightness.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Brightness.Max != 0 && c.Brightness.Min > c.Brightness.Max {
		fail("brightness.min %d above brightness.max %d", c.Brightness.Min, c.Brightness.Max)
	}
	if c.Ramp.Fast < 0 || c.Ramp.Slow < 0 {
		fail("ramp rates must not be negative")
	}

	durations := map[string]time.Duration{
		"auto_brightness.twilight_window":   c.AutoBrightness.TwilightWindow,
		"ambient.short_term_time_constant":  c.Ambient.ShortTermTimeConstant,
		"ambient.long_term_time_constant":   c.Ambient.LongTermTimeConstant,
		"ambient.brightening_debounce":      c.Ambient.BrighteningDebounce,
		"ambient.brightening_debounce_fast": c.Ambient.BrighteningDebounceFast,
		"ambient.darkening_debounce":        c.Ambient.DarkeningDebounce,
		"ambient.synthetic_rate":            c.Ambient.SyntheticRate,
		"ambient.warm_up":                   c.Ambient.WarmUp,
		"proximity.positive_debounce":       c.Proximity.PositiveDebounce,
		"proximity.negative_debounce":       c.Proximity.NegativeDebounce,
		"transition.on_duration":            c.Transition.OnDuration,
		"transition.off_duration":           c.Transition.OffDuration,
		"transition.frame_interval":         c.Transition.FrameInterval,
	}
	for _, key := range lo.Keys(durations) {
		if durations[key] < 0 {
			fail("%s must not be negative", key)
		}
	}
	if c.Transition.FrameInterval == 0 {
		fail("transition.frame_interval must be positive")
	}
	if c.Ambient.SyntheticRate == 0 {
		fail("ambient.synthetic_rate must be positive")
	}
	if c.Ambient.BrighteningHysteresis < 0 || c.Ambient.DarkeningHysteresis < 0 || c.Ambient.DarkeningHysteresis >= 1 {
		fail("ambient hysteresis must be in [0, 1)")
	}
	if c.Proximity.Threshold <= 0 {
		fail("proximity.threshold must be positive")
	}
	if c.AutoBrightness.MaxGamma < 1 || c.AutoBrightness.MaxTwilightGamma < 1 {
		fail("gamma limits must be at least 1")
	}

	if !lo.Contains(drivers, c.Backlight.Driver) {
		fail("unknown backlight.driver %q, want one of %s", c.Backlight.Driver, strings.Join(drivers, ", "))
	}
	if c.Backlight.Driver == DriverSysfs && c.Backlight.Name == "" {
		fail("backlight.name is required for the sysfs driver")
	}
	if c.Backlight.Driver == DriverPWM && c.Backlight.Pin == "" {
		fail("backlight.pin is required for the pwm driver")
	}
	if c.Backlight.PowerLine.Enabled && c.Backlight.PowerLine.Offset < 0 {
		fail("backlight.power_line.offset must not be negative")
	}

	if c.Twilight.Latitude < -90 || c.Twilight.Latitude > 90 || c.Twilight.Longitude < -180 || c.Twilight.Longitude > 180 {
		fail("twilight coordinates out of range")
	}
	if c.DBus.Enabled && !lo.Contains(buses, c.DBus.Bus) {
		fail("unknown dbus.bus %q", c.DBus.Bus)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		fail("mqtt.broker is required when mqtt is enabled")
	}
	if !lo.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		fail("unknown logging.level %q", c.Logging.Level)
	}
	if _, err := c.InitialRequest.Request(0); err != nil {
		fail("initial_request: %v", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
