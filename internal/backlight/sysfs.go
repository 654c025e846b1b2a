// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shini4i/displaypowerd/internal/brightness"
)

// SysfsRoot is where the kernel exposes backlight class devices.
const SysfsRoot = "/sys/class/backlight"

const (
	blankUnblank   = 0
	blankPowerdown = 4
)

// Sysfs is a kernel backlight class device.
type Sysfs struct {
	dir string
	max uint32
}

// NewSysfs opens the backlight called name, or the first one found when name is empty.
func NewSysfs(name string) (*Sysfs, error) {
	if name == "" {
		entries, err := os.ReadDir(SysfsRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to list backlights: %w", err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("no backlight found in %s", SysfsRoot)
		}
		name = entries[0].Name()
	}
	return OpenSysfs(filepath.Join(SysfsRoot, name))
}

// OpenSysfs opens the backlight class device directory dir.
func OpenSysfs(dir string) (*Sysfs, error) {
	data, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("failed to read max brightness: %w", err)
	}
	maxLevel, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to parse max brightness: %w", err)
	}
	if maxLevel == 0 {
		return nil, fmt.Errorf("backlight %s reports zero max brightness", dir)
	}
	return &Sysfs{dir: dir, max: uint32(maxLevel)}, nil
}

// SetLevel writes the brightness attribute.
func (s *Sysfs) SetLevel(level uint32) error {
	level = s.Range().Clamp(level)
	if err := s.write("brightness", level); err != nil {
		return fmt.Errorf("failed to set backlight level: %w", err)
	}
	return nil
}

// SetPower writes bl_power. Backlights without the attribute are left alone.
func (s *Sysfs) SetPower(on bool) error {
	value := uint32(blankPowerdown)
	if on {
		value = blankUnblank
	}
	err := s.write("bl_power", value)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set backlight power: %w", err)
	}
	return nil
}

// Range returns 0 to max_brightness.
func (s *Sysfs) Range() brightness.Range {
	return brightness.Range{Min: 0, Max: s.max}
}

// Close does nothing; sysfs attributes are opened per write.
func (s *Sysfs) Close() error {
	return nil
}

func (s *Sysfs) write(attr string, value uint32) error {
	f, err := os.OpenFile(filepath.Join(s.dir, attr), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.FormatUint(uint64(value), 10))
	return err
}
