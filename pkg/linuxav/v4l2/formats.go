//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// fallbackFPS is reported for a frame size whose intervals cannot be
// enumerated.
const fallbackFPS = 30

// interval is a frame duration in seconds, num/den.
type interval struct {
	num, den uint32
}

func (i interval) fps() float64 {
	if i.num == 0 {
		return 0
	}
	return float64(i.den) / float64(i.num)
}

// Sizes and rates tried against stepwise or continuous ranges.
var (
	commonSizes = [][2]uint32{
		{320, 240}, {640, 480}, {800, 600}, {1024, 768},
		{1280, 720}, {1280, 960}, {1280, 1024},
		{1920, 1080}, {1920, 1200}, {2560, 1440},
		{3840, 2160}, {4096, 2160},
	}
	commonRates = []float64{60, 50, 30, 25, 20, 15, 10, 5}
)

// Formats enumerates the capture pixel formats.
func (d *Device) Formats() ([]PixelFormat, error) {
	var out []PixelFormat
	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{index: i, typ: bufTypeVideoCapture}
		err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&desc))
		if errors.Is(err, syscall.EINVAL) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("enumerate formats of %s: %w", d.path, err)
		}
		out = append(out, PixelFormat{
			Code:        FourCC(desc.pixelformat),
			Description: cstr(desc.description[:]),
			Emulated:    desc.flags&fmtFlagEmulated != 0,
		})
	}
}

// Modes lists every frame size of code with its fastest rate.
func (d *Device) Modes(code FourCC) ([]Mode, error) {
	sizes, err := d.frameSizes(uint32(code))
	if err != nil {
		return nil, err
	}
	modes := make([]Mode, 0, len(sizes))
	for _, s := range sizes {
		m := Mode{Width: s[0], Height: s[1], MaxFPS: fallbackFPS}
		if fps, err := d.fastestRate(uint32(code), s[0], s[1]); err == nil && fps > 0 {
			m.MaxFPS = fps
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func (d *Device) frameSizes(pixfmt uint32) ([][2]uint32, error) {
	var out [][2]uint32
	for i := uint32(0); ; i++ {
		fs := v4l2Frmsizeenum{index: i, pixelFormat: pixfmt}
		err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&fs))
		switch {
		case errors.Is(err, syscall.EINVAL):
			return out, nil
		case errors.Is(err, syscall.ENOTTY):
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("enumerate frame sizes of %s: %w", d.path, err)
		}

		if fs.typ == frmsizeTypeDiscrete {
			out = append(out, [2]uint32{fs.discrete.width, fs.discrete.height})
			continue
		}
		// a stepwise or continuous range is the only entry
		return append(out, sizesWithin(fs.stepwise())...), nil
	}
}

func (d *Device) fastestRate(pixfmt, width, height uint32) (float64, error) {
	best := 0.0
	for i := uint32(0); ; i++ {
		fi := v4l2Frmivalenum{index: i, pixelFormat: pixfmt, width: width, height: height}
		err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&fi))
		if errors.Is(err, syscall.EINVAL) {
			return best, nil
		}
		if err != nil {
			return 0, err
		}

		if fi.typ == frmivalTypeDiscrete {
			best = max(best, interval{fi.discrete.numerator, fi.discrete.denominator}.fps())
			continue
		}
		return max(best, fastestWithin(fi.stepwise())), nil
	}
}

func sizesWithin(s *v4l2FrmsizeStepwise) [][2]uint32 {
	var out [][2]uint32
	for _, size := range commonSizes {
		if size[0] >= s.minWidth && size[0] <= s.maxWidth && size[1] >= s.minHeight && size[1] <= s.maxHeight {
			out = append(out, size)
		}
	}
	return out
}

// fastestWithin picks the fastest common rate inside an interval range.
// The shortest interval, min, is the fastest rate.
func fastestWithin(s *v4l2FrmivalStepwise) float64 {
	fastest := interval{s.min.numerator, s.min.denominator}.fps()
	slowest := interval{s.max.numerator, s.max.denominator}.fps()
	if fastest <= 0 {
		return 0
	}
	for _, fps := range commonRates {
		if fps <= fastest && fps >= slowest {
			return fps
		}
	}
	return fastest
}
