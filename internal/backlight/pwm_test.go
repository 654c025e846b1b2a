// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/shini4i/displaypowerd/internal/brightness"
)

type fakePin struct {
	duty   gpio.Duty
	freq   physic.Frequency
	level  gpio.Level
	pwms   int
	halted bool
	err    error
}

func (p *fakePin) String() string { return "GPIO13" }

func (p *fakePin) Out(l gpio.Level) error {
	p.level = l
	return p.err
}

func (p *fakePin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.duty = duty
	p.freq = f
	p.pwms++
	return p.err
}

func (p *fakePin) Halt() error {
	p.halted = true
	return nil
}

func TestPWM_SetLevel(t *testing.T) {
	pin := &fakePin{}
	p := newPWM(pin, 0, brightness.Range{Min: 0, Max: 100})

	require.NoError(t, p.SetLevel(50))
	assert.Equal(t, gpio.DutyMax/2, pin.duty)
	assert.Equal(t, DefaultPWMFrequency, pin.freq)

	require.NoError(t, p.SetLevel(1000))
	assert.Equal(t, gpio.DutyMax, pin.duty, "level clamped to the range")
}

func TestPWM_PowerOffRemembersLevel(t *testing.T) {
	pin := &fakePin{}
	p := newPWM(pin, 10*physic.KiloHertz, brightness.Range{Min: 0, Max: 255})

	require.NoError(t, p.SetPower(false))
	assert.Equal(t, gpio.Low, pin.level)

	require.NoError(t, p.SetLevel(255))
	assert.Equal(t, 0, pin.pwms, "no duty cycle while off")

	require.NoError(t, p.SetPower(true))
	assert.Equal(t, gpio.DutyMax, pin.duty)
	assert.Equal(t, 10*physic.KiloHertz, pin.freq)

	require.NoError(t, p.Close())
	assert.True(t, pin.halted)
}

func TestPWM_Errors(t *testing.T) {
	pin := &fakePin{err: errors.New("not pwm capable")}
	p := newPWM(pin, 0, brightness.Range{})

	assert.Equal(t, uint32(255), p.Range().Max, "default range")
	assert.ErrorContains(t, p.SetLevel(10), "GPIO13")
	assert.ErrorContains(t, p.SetPower(false), "not pwm capable")
}

type fakeLine struct {
	values []int
	closed bool
}

func (l *fakeLine) SetValue(v int) error {
	l.values = append(l.values, v)
	return nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

func TestPowerLine(t *testing.T) {
	line := &fakeLine{}
	p := &PowerLine{line: line}

	require.NoError(t, p.Set(false))
	require.NoError(t, p.Set(true))
	assert.Equal(t, []int{0, 1}, line.values)

	require.NoError(t, p.Close())
	assert.True(t, line.closed)
}
