// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"github.com/samber/lo"

	"github.com/shini4i/displaypowerd/internal/ambient"
	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/power"
	"github.com/shini4i/displaypowerd/internal/proximity"
	"github.com/shini4i/displaypowerd/internal/telemetry"
	"github.com/shini4i/displaypowerd/internal/transition"
)

// Request converts the request section. A zero brightness is replaced by
// defaultBrightness.
func (r RequestConfig) Request(defaultBrightness uint32) (power.Request, error) {
	state, err := power.ParseScreenState(r.State)
	if err != nil {
		return power.Request{}, err
	}
	level := r.Brightness
	if level == 0 {
		level = defaultBrightness
	}
	return power.Request{
		ScreenState:              state,
		ScreenBrightness:         level,
		UseAutoBrightness:        r.UseAutoBrightness,
		AutoBrightnessAdjustment: lo.Clamp(r.AutoBrightnessAdjustment, -1, 1),
		UseProximitySensor:       r.UseProximitySensor,
		Responsiveness:           r.Responsiveness,
	}, nil
}

// Limits narrows the device range to the configured brightness bounds.
func (c *Config) Limits(device brightness.Range) brightness.Range {
	limits := device
	if c.Brightness.Min != 0 {
		limits.Min = device.Clamp(c.Brightness.Min)
	}
	if c.Brightness.Max != 0 {
		limits.Max = device.Clamp(c.Brightness.Max)
	}
	if limits.Min > limits.Max {
		limits.Min = limits.Max
	}
	return limits
}

// PowerConfig builds the controller tuning for a device range.
func (c *Config) PowerConfig(device brightness.Range) power.Config {
	limits := c.Limits(device)
	pc := power.DefaultConfig(limits)

	if c.Brightness.DimLevel != 0 {
		pc.DimLevel = limits.Clamp(c.Brightness.DimLevel)
	}
	if c.Brightness.DimMinimumReduction != 0 {
		pc.DimMinimumReduction = c.Brightness.DimMinimumReduction
	}
	if c.Ramp.Fast > 0 {
		pc.RampRateFast = c.Ramp.Fast
	}
	if c.Ramp.Slow > 0 {
		pc.RampRateSlow = c.Ramp.Slow
	}

	pc.AutoBrightness = c.AutoBrightness.Enabled
	pc.Table = brightness.Table{
		Lux:    c.AutoBrightness.Lux,
		Levels: c.AutoBrightness.Levels,
	}
	pc.Gamma = brightness.GammaConfig{
		MaxGamma:         c.AutoBrightness.MaxGamma,
		UseTwilight:      c.AutoBrightness.UseTwilight && c.Twilight.Enabled,
		MaxTwilightGamma: c.AutoBrightness.MaxTwilightGamma,
		TwilightWindow:   c.AutoBrightness.TwilightWindow,
	}

	pc.Ambient = ambient.Config{
		ShortTermTimeConstant:    c.Ambient.ShortTermTimeConstant,
		LongTermTimeConstant:     c.Ambient.LongTermTimeConstant,
		BrighteningHysteresis:    c.Ambient.BrighteningHysteresis,
		DarkeningHysteresis:      c.Ambient.DarkeningHysteresis,
		BrighteningDebounce:      c.Ambient.BrighteningDebounce,
		BrighteningDebounceFast:  c.Ambient.BrighteningDebounceFast,
		DarkeningDebounce:        c.Ambient.DarkeningDebounce,
		BrighteningFastThreshold: c.Ambient.BrighteningFastThreshold,
		SyntheticRate:            c.Ambient.SyntheticRate,
		WarmUp:                   c.Ambient.WarmUp,
		ConservativeDarkening:    c.Ambient.ConservativeDarkening,
	}
	pc.Proximity = proximity.Config{
		Threshold:        c.Proximity.Threshold,
		PositiveDebounce: c.Proximity.PositiveDebounce,
		NegativeDebounce: c.Proximity.NegativeDebounce,
	}
	pc.Transition = transition.DirectorConfig{
		AnimateOn:   c.Transition.AnimateOn,
		Fade:        c.Transition.Fade,
		OnDuration:  c.Transition.OnDuration,
		OffDuration: c.Transition.OffDuration,
	}
	pc.FrameInterval = c.Transition.FrameInterval
	return pc
}

// BrokerConfig returns the MQTT connection settings.
func (c *Config) BrokerConfig() telemetry.BrokerConfig {
	return telemetry.BrokerConfig{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		Topic:    c.MQTT.Topic,
	}
}
