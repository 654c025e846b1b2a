// SPDX-License-Identifier: GPL-3.0-only

// Package hid drives the backlight of Apple Studio Displays over USB HID.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo describes a HID device.
type DeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	Interface    int
}

// Device is a raw HID handle.
type Device interface {
	// GetFeatureReport reads a feature report. The first byte selects the report ID.
	GetFeatureReport(data []byte) (int, error)

	// SendFeatureReport writes a feature report. The first byte is the report ID.
	SendFeatureReport(data []byte) (int, error)

	// Close closes the handle.
	Close() error

	// Info returns the device description.
	Info() DeviceInfo
}
