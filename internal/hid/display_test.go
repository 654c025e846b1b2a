// SPDX-License-Identifier: GPL-3.0-only

package hid_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shini4i/displaypowerd/internal/hid"
	"github.com/shini4i/displaypowerd/internal/hid/mocks"
)

func TestDisplay_Nits(t *testing.T) {
	tests := []struct {
		name     string
		report   []byte
		expected uint32
	}{
		{
			name:     "minimum",
			report:   []byte{0x01, 0x90, 0x01, 0x00, 0x00},
			expected: 400,
		},
		{
			name:     "maximum",
			report:   []byte{0x01, 0x60, 0xEA, 0x00, 0x00},
			expected: 60000,
		},
		{
			name:     "midpoint",
			report:   []byte{0x01, 0xF8, 0x75, 0x00, 0x00},
			expected: 30200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			device := mocks.NewMockDevice(ctrl)
			device.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
				func(data []byte) (int, error) {
					require.Len(t, data, hid.ReportSize)
					assert.Equal(t, hid.ReportID, data[0])
					copy(data, tt.report)
					return hid.ReportSize, nil
				},
			)

			nits, err := hid.NewDisplay(device).Nits()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, nits)
		})
	}
}

func TestDisplay_Nits_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().GetFeatureReport(gomock.Any()).Return(0, errors.New("io error"))

	_, err := hid.NewDisplay(device).Nits()
	assert.ErrorContains(t, err, "failed to get feature report")
}

func TestDisplay_SetNits(t *testing.T) {
	tests := []struct {
		name     string
		nits     uint32
		expected []byte
	}{
		{name: "minimum", nits: 400, expected: []byte{0x01, 0x90, 0x01, 0x00, 0x00, 0x00, 0x00}},
		{name: "maximum", nits: 60000, expected: []byte{0x01, 0x60, 0xEA, 0x00, 0x00, 0x00, 0x00}},
		{name: "midpoint", nits: 30200, expected: []byte{0x01, 0xF8, 0x75, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			device := mocks.NewMockDevice(ctrl)
			device.EXPECT().SendFeatureReport(tt.expected).Return(hid.ReportSize, nil)

			require.NoError(t, hid.NewDisplay(device).SetNits(tt.nits))
		})
	}
}

func TestDisplay_Closed(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().Close().Return(nil).Times(1)

	display := hid.NewDisplay(device)
	require.NoError(t, display.Close())
	require.NoError(t, display.Close(), "second close is a no-op")

	_, err := display.Nits()
	assert.ErrorIs(t, err, hid.ErrDisplayClosed)
	assert.ErrorIs(t, display.SetNits(1000), hid.ErrDisplayClosed)
}

func TestDisplay_Info(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().Info().Return(hid.DeviceInfo{Serial: "ABC123", Product: "Studio Display"}).AnyTimes()

	display := hid.NewDisplay(device)
	assert.Equal(t, "ABC123", display.Serial())
	assert.Equal(t, "Studio Display", display.Product())
}

func TestIsDeviceGone(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "closed", err: fmt.Errorf("write: %w", hid.ErrDisplayClosed), expected: true},
		{name: "no such device", err: errors.New("hidapi: No such device"), expected: true},
		{name: "not connected", err: errors.New("Device not connected"), expected: true},
		{name: "other", err: errors.New("broken pipe"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hid.IsDeviceGone(tt.err))
		})
	}
}
