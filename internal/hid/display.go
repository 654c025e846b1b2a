// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	// ReportID is the HID report carrying the backlight level.
	ReportID byte = 0x01

	// ReportSize is the length of the backlight feature report.
	ReportSize = 7

	// AppleVendorID is Apple's USB vendor ID.
	AppleVendorID uint16 = 0x05ac

	// StudioDisplayProductID is the USB product ID of the Apple Studio Display.
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface exposing the backlight report.
	BrightnessInterface = 0x07
)

// ErrDisplayClosed is returned when a closed display is used.
var ErrDisplayClosed = errors.New("display is closed")

// Display is one Apple Studio Display. It is safe for concurrent use.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewDisplay wraps an open HID device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// Nits reads the backlight level in nits.
func (d *Display) Nits() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	if _, err := d.device.GetFeatureReport(data); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}
	return binary.LittleEndian.Uint32(data[1:5]), nil
}

// SetNits writes the backlight level in nits. The caller keeps the value inside
// brightness.StudioDisplayRange.
func (d *Display) SetNits(nits uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	binary.LittleEndian.PutUint32(data[1:5], nits)
	if _, err := d.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Serial returns the display serial number.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// Product returns the display product name.
func (d *Display) Product() string {
	return d.device.Info().Product
}

// Close closes the HID handle. Closing twice is a no-op.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.device.Close()
}

// IsDeviceGone reports whether err means the display was unplugged.
func IsDeviceGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisplayClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") || strings.Contains(msg, "device not connected")
}
