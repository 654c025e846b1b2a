// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
	"github.com/samber/lo"
)

// hidapiDevice adapts a karalabe/hid handle to Device.
type hidapiDevice struct {
	karalabehid.Device
	info DeviceInfo
}

var _ Device = (*hidapiDevice)(nil)

func (d *hidapiDevice) Info() DeviceInfo {
	return d.info
}

// studioDisplays lists the backlight interfaces of every connected Studio Display.
func studioDisplays() ([]karalabehid.DeviceInfo, error) {
	devices, err := karalabehid.Enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	return lo.Filter(devices, func(d karalabehid.DeviceInfo, _ int) bool {
		return d.Interface == BrightnessInterface
	}), nil
}

func toDeviceInfo(d karalabehid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		Path:         d.Path,
		VendorID:     d.VendorID,
		ProductID:    d.ProductID,
		Serial:       d.Serial,
		Manufacturer: d.Manufacturer,
		Product:      d.Product,
		Interface:    d.Interface,
	}
}

// EnumerateDisplays describes every connected Studio Display.
func EnumerateDisplays() ([]DeviceInfo, error) {
	devices, err := studioDisplays()
	if err != nil {
		return nil, err
	}
	return lo.Map(devices, func(d karalabehid.DeviceInfo, _ int) DeviceInfo {
		return toDeviceInfo(d)
	}), nil
}

// OpenDisplay opens the Studio Display with the given serial, or the first one
// found when serial is empty.
func OpenDisplay(serial string) (Device, error) {
	devices, err := studioDisplays()
	if err != nil {
		return nil, err
	}

	match, ok := lo.Find(devices, func(d karalabehid.DeviceInfo) bool {
		return serial == "" || d.Serial == serial
	})
	if !ok {
		if serial != "" {
			return nil, fmt.Errorf("display with serial %s not found", serial)
		}
		return nil, fmt.Errorf("no Apple Studio Display found")
	}

	device, err := match.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open display %s: %w", match.Serial, err)
	}
	return &hidapiDevice{Device: device, info: toDeviceInfo(match)}, nil
}
