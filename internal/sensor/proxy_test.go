// SPDX-License-Identifier: GPL-3.0-only

package sensor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller implements caller for testing. When block is set the first Call
// signals entered and waits for block to be closed.
type fakeCaller struct {
	mu         sync.Mutex
	calls      []string
	properties map[string]interface{}
	callErr    error
	entered    chan struct{}
	block      chan struct{}
}

func (f *fakeCaller) Call(method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	err := f.callErr
	entered, block := f.entered, f.block
	f.entered = nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-block
	}
	return &dbus.Call{Err: err}
}

func (f *fakeCaller) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCaller) GetProperty(p string) (dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.properties[p]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return dbus.MakeVariant(v), nil
}

var fixedNow = time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)

func newTestProxy(c *fakeCaller) *Proxy {
	return NewProxy(nil, withCaller(c), WithProxyClock(func() time.Time { return fixedNow }))
}

func propertiesSignal(iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: ProxyPath,
		Name: propertiesChanged,
		Body: []interface{}{iface, changed, []string{}},
	}
}

func TestProxy_LightEnable_ClaimsAndEmitsCurrentLevel(t *testing.T) {
	c := &fakeCaller{properties: map[string]interface{}{
		ProxyInterface + ".LightLevel":     42.5,
		ProxyInterface + ".LightLevelUnit": "lux",
	}}
	p := newTestProxy(c)

	var got []Sample
	err := p.Light().Enable(func(s Sample) { got = append(got, s) })
	require.NoError(t, err)
	p.light.wait()

	assert.Equal(t, []string{ProxyInterface + ".ClaimLight"}, c.recorded())
	require.Len(t, got, 1)
	assert.Equal(t, Sample{Time: fixedNow, Value: 42.5}, got[0])
}

func TestProxy_LightEnable_ClaimErrorRetriesOnNextEnable(t *testing.T) {
	c := &fakeCaller{callErr: errors.New("access denied")}
	p := newTestProxy(c)

	var got []Sample
	require.NoError(t, p.Light().Enable(func(s Sample) { got = append(got, s) }))
	p.light.wait()
	assert.Empty(t, got)

	c.mu.Lock()
	c.callErr = nil
	c.properties = map[string]interface{}{ProxyInterface + ".LightLevel": 7.0}
	c.mu.Unlock()

	require.NoError(t, p.Light().Enable(func(s Sample) { got = append(got, s) }))
	p.light.wait()
	assert.Equal(t, []string{ProxyInterface + ".ClaimLight", ProxyInterface + ".ClaimLight"}, c.recorded())
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].Value)
}

func TestProxy_Disable_ReleasesOnlyWhenClaimed(t *testing.T) {
	c := &fakeCaller{properties: map[string]interface{}{}}
	p := newTestProxy(c)

	require.NoError(t, p.Proximity().Disable())
	p.proximity.wait()
	assert.Empty(t, c.recorded())

	require.NoError(t, p.Proximity().Enable(func(Sample) {}))
	p.proximity.wait()
	require.NoError(t, p.Proximity().Disable())
	p.proximity.wait()
	assert.Equal(t, []string{
		ProxyInterface + ".ClaimProximity",
		ProxyInterface + ".ReleaseProximity",
	}, c.recorded())
}

func TestProxy_EnableDoesNotWaitForBus(t *testing.T) {
	c := &fakeCaller{
		properties: map[string]interface{}{ProxyInterface + ".ProximityNear": true},
		entered:    make(chan struct{}),
		block:      make(chan struct{}),
	}
	entered := c.entered
	p := newTestProxy(c)

	var got []Sample
	require.NoError(t, p.Proximity().Enable(func(s Sample) { got = append(got, s) }))
	<-entered

	// Disabled while the claim is still on the bus: the claim is undone.
	require.NoError(t, p.Proximity().Disable())
	close(c.block)
	p.proximity.wait()

	assert.Equal(t, []string{
		ProxyInterface + ".ClaimProximity",
		ProxyInterface + ".ReleaseProximity",
	}, c.recorded())
	assert.Empty(t, got, "no sample after Disable")
}

func TestProxy_HandleSignal(t *testing.T) {
	tests := []struct {
		name      string
		signal    *dbus.Signal
		wantLight []float64
		wantProx  []float64
	}{
		{
			name:      "light level change",
			signal:    propertiesSignal(ProxyInterface, map[string]dbus.Variant{"LightLevel": dbus.MakeVariant(310.0)}),
			wantLight: []float64{310},
		},
		{
			name:     "proximity near",
			signal:   propertiesSignal(ProxyInterface, map[string]dbus.Variant{"ProximityNear": dbus.MakeVariant(true)}),
			wantProx: []float64{0},
		},
		{
			name:     "proximity far",
			signal:   propertiesSignal(ProxyInterface, map[string]dbus.Variant{"ProximityNear": dbus.MakeVariant(false)}),
			wantProx: []float64{ProximityMaxRange},
		},
		{
			name:   "other interface ignored",
			signal: propertiesSignal("org.example.Other", map[string]dbus.Variant{"LightLevel": dbus.MakeVariant(1.0)}),
		},
		{
			name:   "wrong value type ignored",
			signal: propertiesSignal(ProxyInterface, map[string]dbus.Variant{"LightLevel": dbus.MakeVariant("bright")}),
		},
		{
			name:   "nil signal",
			signal: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProxy(&fakeCaller{})
			var light, prox []float64
			p.setListener("Light", func(s Sample) { light = append(light, s.Value) })
			p.setListener("Proximity", func(s Sample) { prox = append(prox, s.Value) })

			p.handleSignal(tt.signal)

			assert.Equal(t, tt.wantLight, light)
			assert.Equal(t, tt.wantProx, prox)
		})
	}
}

func TestProxy_HasSensors(t *testing.T) {
	c := &fakeCaller{properties: map[string]interface{}{
		ProxyInterface + ".HasAmbientLight": true,
	}}
	p := newTestProxy(c)

	assert.True(t, p.HasAmbientLight())
	assert.False(t, p.HasProximity())
	assert.Equal(t, LightMaxRange, p.Light().MaxRange())
	assert.Equal(t, ProximityMaxRange, p.Proximity().MaxRange())
}

func TestProxy_CloseWithoutStart(t *testing.T) {
	p := newTestProxy(&fakeCaller{})
	assert.NoError(t, p.Close())
}

func TestFake_Emit(t *testing.T) {
	f := NewFake(5)
	assert.False(t, f.Emit(Sample{Value: 1}))

	var got []Sample
	require.NoError(t, f.Enable(func(s Sample) { got = append(got, s) }))
	assert.True(t, f.Enabled())
	assert.True(t, f.Emit(Sample{Value: 1}))

	require.NoError(t, f.Disable())
	assert.False(t, f.Emit(Sample{Value: 2}))
	assert.Len(t, got, 1)

	enables, disables := f.Counts()
	assert.Equal(t, 1, enables)
	assert.Equal(t, 1, disables)
}
