// SPDX-License-Identifier: GPL-3.0-only

// Package surface provides transition surfaces for Linux displays.
package surface

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/shini4i/displaypowerd/internal/transition"
)

// DefaultFramebuffer is the framebuffer device used when none is configured.
const DefaultFramebuffer = "/dev/fb0"

const sysfsGraphics = "/sys/class/graphics"

type device interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Geometry describes the framebuffer memory layout.
type Geometry struct {
	Width        int
	Height       int
	Stride       int
	BitsPerPixel int
}

// Framebuffer draws transitions directly into a 32 bpp XRGB fbdev device.
//
// fbdev has no overlay plane, so a fade snapshots the live screen on its first
// frame and blends black over that snapshot.
type Framebuffer struct {
	path     string
	geometry Geometry
	open     func(path string) (device, error)

	dev      device
	base     *image.RGBA
	canvas   *image.RGBA
	scratch  *image.RGBA
	raw      []byte
	captured bool
}

// Option configures a Framebuffer.
type Option func(*Framebuffer)

// WithGeometry skips the sysfs lookup.
func WithGeometry(g Geometry) Option {
	return func(f *Framebuffer) {
		f.geometry = g
	}
}

func withOpener(open func(path string) (device, error)) Option {
	return func(f *Framebuffer) {
		f.open = open
	}
}

// NewFramebuffer creates a surface for the fbdev device at path.
func NewFramebuffer(path string, opts ...Option) (*Framebuffer, error) {
	if path == "" {
		path = DefaultFramebuffer
	}
	f := &Framebuffer{
		path: path,
		open: func(p string) (device, error) {
			return os.OpenFile(p, os.O_RDWR, 0)
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.geometry.Width == 0 {
		g, err := ReadGeometry(filepath.Join(sysfsGraphics, filepath.Base(path)))
		if err != nil {
			return nil, err
		}
		f.geometry = g
	}
	if f.geometry.BitsPerPixel != 32 {
		return nil, fmt.Errorf("%w: unsupported pixel depth %d", transition.ErrSurfaceUnavailable, f.geometry.BitsPerPixel)
	}
	if f.geometry.Stride == 0 {
		f.geometry.Stride = f.geometry.Width * 4
	}
	return f, nil
}

// ReadGeometry reads the layout of a framebuffer from its sysfs directory.
func ReadGeometry(dir string) (Geometry, error) {
	size, err := readSysfs(dir, "virtual_size")
	if err != nil {
		return Geometry{}, err
	}
	w, h, ok := strings.Cut(size, ",")
	if !ok {
		return Geometry{}, fmt.Errorf("failed to parse framebuffer size %q", size)
	}

	var g Geometry
	if g.Width, err = strconv.Atoi(w); err != nil {
		return Geometry{}, fmt.Errorf("failed to parse framebuffer width: %w", err)
	}
	if g.Height, err = strconv.Atoi(h); err != nil {
		return Geometry{}, fmt.Errorf("failed to parse framebuffer height: %w", err)
	}

	bpp, err := readSysfs(dir, "bits_per_pixel")
	if err != nil {
		return Geometry{}, err
	}
	if g.BitsPerPixel, err = strconv.Atoi(bpp); err != nil {
		return Geometry{}, fmt.Errorf("failed to parse framebuffer depth: %w", err)
	}

	if stride, err := readSysfs(dir, "stride"); err == nil {
		g.Stride, _ = strconv.Atoi(stride)
	}
	return g, nil
}

func readSysfs(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Size returns the framebuffer dimensions.
func (f *Framebuffer) Size() (int, int) {
	return f.geometry.Width, f.geometry.Height
}

// Prepare opens the device and optionally captures the screen.
func (f *Framebuffer) Prepare(capture bool) error {
	f.Release()

	dev, err := f.open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open framebuffer %s: %w", f.path, err)
	}
	f.dev = dev

	bounds := image.Rect(0, 0, f.geometry.Width, f.geometry.Height)
	f.canvas = image.NewRGBA(bounds)
	f.scratch = image.NewRGBA(bounds)
	f.base = image.NewRGBA(bounds)
	f.raw = make([]byte, f.geometry.Stride*f.geometry.Height)
	f.captured = false

	if capture {
		if err := f.capture(); err != nil {
			f.Release()
			return err
		}
	}
	return nil
}

func (f *Framebuffer) capture() error {
	if _, err := f.dev.ReadAt(f.raw, 0); err != nil && err != io.EOF {
		return fmt.Errorf("failed to capture framebuffer: %w", err)
	}
	for y := 0; y < f.geometry.Height; y++ {
		row := f.raw[y*f.geometry.Stride:]
		pix := f.base.Pix[y*f.base.Stride:]
		for x := 0; x < f.geometry.Width; x++ {
			// XRGB8888 little endian is B, G, R, X in memory.
			pix[x*4+0] = row[x*4+2]
			pix[x*4+1] = row[x*4+1]
			pix[x*4+2] = row[x*4+0]
			pix[x*4+3] = 0xff
		}
	}
	f.captured = true
	return nil
}

// Show composites frame and writes it to the device.
func (f *Framebuffer) Show(frame transition.Frame) error {
	if f.dev == nil {
		return transition.ErrSurfaceUnavailable
	}

	if frame.Mode == transition.ModeFade {
		if !f.captured {
			if err := f.capture(); err != nil {
				return err
			}
		}
		f.fade(frame.OverlayAlpha)
		return f.flush()
	}

	clear(f.canvas.Pix)
	for _, layer := range frame.Layers {
		r := quadRect(layer.Quad)
		if r.Empty() {
			continue
		}
		if layer.Textured {
			clear(f.scratch.Pix)
			draw.ApproxBiLinear.Scale(f.scratch, r, f.base, f.base.Bounds(), draw.Src, nil)
			addImage(f.canvas, f.scratch, r.Intersect(f.canvas.Bounds()), layer.Channels, layer.Intensity)
		} else {
			addSolid(f.canvas, r.Intersect(f.canvas.Bounds()), layer.Channels, layer.Intensity)
		}
	}
	return f.flush()
}

func (f *Framebuffer) fade(alpha float64) {
	keep := 1 - math.Max(0, math.Min(1, alpha))
	for i := 0; i < len(f.base.Pix); i += 4 {
		f.canvas.Pix[i+0] = uint8(float64(f.base.Pix[i+0]) * keep)
		f.canvas.Pix[i+1] = uint8(float64(f.base.Pix[i+1]) * keep)
		f.canvas.Pix[i+2] = uint8(float64(f.base.Pix[i+2]) * keep)
		f.canvas.Pix[i+3] = 0xff
	}
}

func (f *Framebuffer) flush() error {
	return f.write(f.canvas)
}

func (f *Framebuffer) write(img *image.RGBA) error {
	for y := 0; y < f.geometry.Height; y++ {
		row := f.raw[y*f.geometry.Stride:]
		pix := img.Pix[y*img.Stride:]
		for x := 0; x < f.geometry.Width; x++ {
			row[x*4+0] = pix[x*4+2]
			row[x*4+1] = pix[x*4+1]
			row[x*4+2] = pix[x*4+0]
			row[x*4+3] = 0
		}
	}
	if _, err := f.dev.WriteAt(f.raw, 0); err != nil {
		return fmt.Errorf("failed to write framebuffer: %w", err)
	}
	return nil
}

// Release restores the captured screen and closes the device.
func (f *Framebuffer) Release() {
	if f.dev == nil {
		return
	}
	if f.captured {
		if err := f.write(f.base); err != nil {
			log.Warn().Err(err).Msg("Failed to restore framebuffer contents")
		}
	}
	if err := f.dev.Close(); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("Failed to close framebuffer")
	}
	f.dev = nil
	f.captured = false
}

func quadRect(q transition.Quad) image.Rectangle {
	return image.Rect(
		int(math.Round(q.X)),
		int(math.Round(q.Y)),
		int(math.Round(q.X+q.W)),
		int(math.Round(q.Y+q.H)),
	)
}

func channelMask(c transition.Channel) [3]bool {
	return [3]bool{
		c&transition.ChannelRed != 0,
		c&transition.ChannelGreen != 0,
		c&transition.ChannelBlue != 0,
	}
}

func addImage(dst, src *image.RGBA, r image.Rectangle, channels transition.Channel, intensity float64) {
	mask := channelMask(channels)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				if mask[c] {
					dst.Pix[i+c] = saturate(float64(dst.Pix[i+c]) + float64(src.Pix[i+c])*intensity)
				}
			}
			dst.Pix[i+3] = 0xff
		}
	}
}

func addSolid(dst *image.RGBA, r image.Rectangle, channels transition.Channel, intensity float64) {
	mask := channelMask(channels)
	add := 255 * intensity
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				if mask[c] {
					dst.Pix[i+c] = saturate(float64(dst.Pix[i+c]) + add)
				}
			}
			dst.Pix[i+3] = 0xff
		}
	}
}

func saturate(v float64) uint8 {
	if v >= 255 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v)
}
