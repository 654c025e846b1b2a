// SPDX-License-Identifier: GPL-3.0-only

package backlight_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shini4i/displaypowerd/internal/backlight"
	"github.com/shini4i/displaypowerd/internal/backlight/mocks"
	"github.com/shini4i/displaypowerd/internal/brightness"
)

func TestGated_SetPowerOrdering(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)
	power := mocks.NewMockSwitch(ctrl)

	gomock.InOrder(
		power.EXPECT().Set(true).Return(nil),
		dev.EXPECT().SetPower(true).Return(nil),
		dev.EXPECT().SetPower(false).Return(nil),
		power.EXPECT().Set(false).Return(nil),
	)

	g := backlight.NewGated(dev, power)
	require.NoError(t, g.SetPower(true))
	require.NoError(t, g.SetPower(false))
}

func TestGated_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)
	power := mocks.NewMockSwitch(ctrl)

	power.EXPECT().Set(true).Return(errors.New("line busy"))
	g := backlight.NewGated(dev, power)
	assert.ErrorContains(t, g.SetPower(true), "line busy")

	dev.EXPECT().SetPower(false).Return(errors.New("usb gone"))
	assert.ErrorContains(t, g.SetPower(false), "usb gone")

	dev.EXPECT().Range().Return(brightness.Range{Max: 100})
	assert.Equal(t, uint32(100), g.Range().Max, "level methods pass through")

	power.EXPECT().Close().Return(errors.New("a"))
	dev.EXPECT().Close().Return(errors.New("b"))
	err := g.Close()
	assert.ErrorContains(t, err, "a")
	assert.ErrorContains(t, err, "b")
}

func newSysfsDir(t *testing.T, withPower bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("937\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"), []byte("0\n"), 0o644))
	if withPower {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bl_power"), []byte("0\n"), 0o644))
	}
	return dir
}

func readAttr(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestSysfs(t *testing.T) {
	dir := newSysfsDir(t, true)

	s, err := backlight.OpenSysfs(dir)
	require.NoError(t, err)
	assert.Equal(t, brightness.Range{Min: 0, Max: 937}, s.Range())

	require.NoError(t, s.SetLevel(512))
	assert.Equal(t, "512", readAttr(t, dir, "brightness"))

	require.NoError(t, s.SetLevel(5000))
	assert.Equal(t, "937", readAttr(t, dir, "brightness"), "levels are clamped to max_brightness")

	require.NoError(t, s.SetPower(false))
	assert.Equal(t, "4", readAttr(t, dir, "bl_power"))
	require.NoError(t, s.SetPower(true))
	assert.Equal(t, "0", readAttr(t, dir, "bl_power"))

	assert.NoError(t, s.Close())
}

func TestSysfs_WithoutPowerAttribute(t *testing.T) {
	s, err := backlight.OpenSysfs(newSysfsDir(t, false))
	require.NoError(t, err)
	assert.NoError(t, s.SetPower(false))
}

func TestOpenSysfs_Errors(t *testing.T) {
	_, err := backlight.OpenSysfs(t.TempDir())
	assert.ErrorContains(t, err, "failed to read max brightness")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("0"), 0o644))
	_, err = backlight.OpenSysfs(dir)
	assert.ErrorContains(t, err, "zero max brightness")
}
