// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/displaypowerd/internal/hid"
	"github.com/shini4i/displaypowerd/internal/power"
)

// mockController implements Controller for testing.
type mockController struct {
	mu        sync.Mutex
	requests  []power.Request
	waits     []bool
	ready     bool
	proximity bool
	status    power.Status
	dump      string
	dumpErr   error
}

func (m *mockController) RequestPowerState(req power.Request, wait bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.waits = append(m.waits, wait)
	return m.ready
}

func (m *mockController) IsProximitySensorAvailable() bool {
	return m.proximity
}

func (m *mockController) Status() power.Status {
	return m.status
}

func (m *mockController) Dump(ctx context.Context) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("dump without deadline")
	}
	return m.dump, m.dumpErr
}

type mockDisplayLister struct {
	displays []hid.DeviceInfo
}

func (m *mockDisplayLister) ListDisplays() []hid.DeviceInfo {
	return m.displays
}

func brightRequest() PowerRequest {
	return PowerRequest{ScreenState: "bright", ScreenBrightness: 120}
}

func TestNewServer(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)
	assert.NotNil(t, server)
	assert.Equal(t, controller, server.controller)
	assert.Equal(t, SessionBus, server.bus)

	server = NewServer(controller, WithBus(SystemBus))
	assert.Equal(t, SystemBus, server.bus)
}

func TestBus_ConnectUnknown(t *testing.T) {
	_, err := Bus("starship").Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBus)
}

func TestPowerRequest_ToRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      PowerRequest
		want    power.Request
		wantErr bool
	}{
		{
			name: "bright",
			in:   PowerRequest{ScreenState: "bright", ScreenBrightness: 200, UseProximitySensor: true},
			want: power.Request{ScreenState: power.ScreenBright, ScreenBrightness: 200, UseProximitySensor: true},
		},
		{
			name: "on is bright",
			in:   PowerRequest{ScreenState: "on"},
			want: power.Request{ScreenState: power.ScreenBright},
		},
		{
			name: "adjustment clamped",
			in:   PowerRequest{ScreenState: "dim", UseAutoBrightness: true, AutoBrightnessAdjustment: 3},
			want: power.Request{ScreenState: power.ScreenDim, UseAutoBrightness: true, AutoBrightnessAdjustment: 1},
		},
		{
			name: "negative adjustment clamped",
			in:   PowerRequest{ScreenState: "off", AutoBrightnessAdjustment: -2, Responsiveness: 0.5},
			want: power.Request{ScreenState: power.ScreenOff, AutoBrightnessAdjustment: -1, Responsiveness: 0.5},
		},
		{
			name:    "unknown state",
			in:      PowerRequest{ScreenState: "sideways"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.ToRequest()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromRequest_RoundTrip(t *testing.T) {
	req := power.Request{
		ScreenState:              power.ScreenDim,
		ScreenBrightness:         42,
		UseAutoBrightness:        true,
		AutoBrightnessAdjustment: -0.25,
		BlockScreenOn:            true,
		Responsiveness:           2,
	}
	got, err := FromRequest(req).ToRequest()
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestServer_RequestPowerState(t *testing.T) {
	controller := &mockController{ready: true}
	server := NewServer(controller)

	ready, err := server.RequestPowerState(brightRequest(), true)
	require.Nil(t, err)
	assert.True(t, ready)

	require.Len(t, controller.requests, 1)
	assert.Equal(t, power.ScreenBright, controller.requests[0].ScreenState)
	assert.Equal(t, uint32(120), controller.requests[0].ScreenBrightness)
	assert.True(t, controller.waits[0])
}

func TestServer_RequestPowerState_NotReady(t *testing.T) {
	controller := &mockController{ready: false}
	server := NewServer(controller)

	ready, err := server.RequestPowerState(brightRequest(), false)
	require.Nil(t, err)
	assert.False(t, ready)
}

func TestServer_RequestPowerState_InvalidState(t *testing.T) {
	controller := &mockController{}
	server := NewServer(controller)

	_, err := server.RequestPowerState(PowerRequest{ScreenState: "blinking"}, false)
	require.NotNil(t, err)
	assert.Empty(t, controller.requests)
}

func TestServer_RateLimiting(t *testing.T) {
	controller := &mockController{ready: true}
	server := NewServer(controller)

	// The burst goes through
	for i := 0; i < rateLimitBurst; i++ {
		_, err := server.RequestPowerState(brightRequest(), false)
		require.Nil(t, err)
	}

	// Next request should be rate limited
	_, err := server.RequestPowerState(brightRequest(), false)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), ErrRateLimitExceeded.Error())
	assert.Len(t, controller.requests, rateLimitBurst)
}

func TestServer_IsProximitySensorAvailable(t *testing.T) {
	server := NewServer(&mockController{proximity: true})
	available, err := server.IsProximitySensorAvailable()
	require.Nil(t, err)
	assert.True(t, available)

	server = NewServer(&mockController{})
	available, err = server.IsProximitySensorAvailable()
	require.Nil(t, err)
	assert.False(t, available)
}

func TestServer_GetStatus(t *testing.T) {
	controller := &mockController{status: power.Status{
		Ready:       true,
		ScreenState: "bright",
		ScreenOn:    true,
		Level:       180,
		Proximity:   "far",
	}}
	server := NewServer(controller)

	raw, err := server.GetStatus()
	require.Nil(t, err)

	var status power.Status
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.Equal(t, controller.status, status)
	assert.Contains(t, raw, `"screen_state":"bright"`)
}

func TestServer_Dump(t *testing.T) {
	server := NewServer(&mockController{dump: "Display power controller:\n"})
	out, err := server.Dump()
	require.Nil(t, err)
	assert.Equal(t, "Display power controller:\n", out)
}

func TestServer_Dump_Error(t *testing.T) {
	server := NewServer(&mockController{dumpErr: context.DeadlineExceeded})
	_, err := server.Dump()
	require.NotNil(t, err)
}

func TestServer_ListDisplays(t *testing.T) {
	lister := &mockDisplayLister{
		displays: []hid.DeviceInfo{
			{Serial: "ABC123", Product: "Apple Studio Display"},
			{Serial: "DEF456", Product: "Apple Studio Display"},
		},
	}
	server := NewServer(&mockController{}, WithDisplayLister(lister))

	result, err := server.ListDisplays()
	require.Nil(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "ABC123", result[0].Serial)
	assert.Equal(t, "Apple Studio Display", result[0].ProductName)
	assert.Equal(t, "DEF456", result[1].Serial)
}

func TestServer_ListDisplays_NoLister(t *testing.T) {
	server := NewServer(&mockController{})

	result, err := server.ListDisplays()
	require.Nil(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestServer_Constants(t *testing.T) {
	assert.Equal(t, "io.github.shini4i.DisplayPower", ServiceName)
	assert.Equal(t, "/io/github/shini4i/DisplayPower", string(ObjectPath))
	assert.Contains(t, IntrospectXML, `<method name="RequestPowerState">`)
	assert.Contains(t, IntrospectXML, `<signal name="ProximityNegative"/>`)
}

// Callbacks without a connection return early.
func TestServer_CallbacksWithoutConnection(t *testing.T) {
	server := NewServer(&mockController{status: power.Status{ScreenState: "off"}})

	assert.NotPanics(t, func() {
		server.OnStateChanged()
		server.OnProximityPositive()
		server.OnProximityNegative()
		server.EmitDisplayAdded("ABC123", "Apple Studio Display")
		server.EmitDisplayRemoved("ABC123")
	})
}

// TestServer_ConcurrentStopAndEmit tests that Stop and signal emission
// methods don't race when called concurrently.
func TestServer_ConcurrentStopAndEmit(t *testing.T) {
	server := NewServer(&mockController{})
	// Note: conn is nil, but we're testing mutex protection, not actual D-Bus calls

	var wg sync.WaitGroup
	const numGoroutines = 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			server.OnStateChanged()
		}()
		go func() {
			defer wg.Done()
			server.OnProximityPositive()
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = server.Stop()
		}()
	}

	wg.Wait()
}
