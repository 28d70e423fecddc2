//go:build linux

package devices

import (
	"context"
	"fmt"
	"strings"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
	"github.com/smazurov/teecast/pkg/linuxav/v4l2"
)

type ioctlProber struct{}

func newIoctlProber() Prober { return ioctlProber{} }

func (ioctlProber) Name() Strategy { return StrategyV4L2 }

// Probe lists the modes of the pixel format matching format, or of every
// format when the device does not offer it.
func (ioctlProber) Probe(_ context.Context, device string, format streams.InputFormat) ([]resolution.Resolution, error) {
	dev, err := v4l2.Open(device)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	formats, err := dev.Formats()
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("%s reports no pixel formats", device)
	}

	want := v4l2.ParseFourCC(fourCCFor(format))
	codes := make([]v4l2.FourCC, 0, len(formats))
	for _, f := range formats {
		if f.Code == want {
			codes = []v4l2.FourCC{want}
			break
		}
		codes = append(codes, f.Code)
	}

	var found []resolution.Resolution
	for _, code := range codes {
		modes, err := dev.Modes(code)
		if err != nil {
			return nil, err
		}
		for _, m := range modes {
			found = append(found, resolution.Resolution{Width: int(m.Width), Height: int(m.Height), MaxFPS: m.MaxFPS})
		}
	}
	return found, nil
}

// enumerateCameras lists capture nodes through sysfs and VIDIOC_QUERYCAP.
func enumerateCameras() ([]Camera, error) {
	nodes, err := v4l2.Enumerate()
	if err != nil {
		return nil, err
	}
	cameras := make([]Camera, 0, len(nodes))
	for _, n := range nodes {
		cameras = append(cameras, Camera{
			Path:    n.Path,
			Name:    n.Card,
			ID:      n.StableID,
			Driver:  n.Driver,
			BusInfo: n.Bus,
		})
	}
	return cameras, nil
}

// describeFormats renders the ioctl enumeration grouped by pixel format.
func describeFormats(device string) (string, error) {
	dev, err := v4l2.Open(device)
	if err != nil {
		return "", err
	}
	defer dev.Close()

	formats, err := dev.Formats()
	if err != nil {
		return "", err
	}
	if len(formats) == 0 {
		return "", fmt.Errorf("%s reports no pixel formats", device)
	}

	var b strings.Builder
	for _, f := range formats {
		fmt.Fprintf(&b, "%s (%s)", f.Code, f.Description)
		if f.Emulated {
			b.WriteString(" [emulated]")
		}
		b.WriteByte('\n')
		modes, err := dev.Modes(f.Code)
		if err != nil {
			fmt.Fprintf(&b, "  error: %v\n", err)
			continue
		}
		for _, m := range modes {
			fmt.Fprintf(&b, "  %dx%d @ %g fps\n", m.Width, m.Height, m.MaxFPS)
		}
	}
	return b.String(), nil
}
