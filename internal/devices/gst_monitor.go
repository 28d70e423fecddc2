//go:build !gst

package devices

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

// DeviceMonitorBinary lists GStreamer devices and their caps.
const DeviceMonitorBinary = "gst-device-monitor-1.0"

// DeviceMonitorProber reads caps from `gst-device-monitor-1.0 Video/Source`.
type DeviceMonitorProber struct {
	Run CommandRunner
}

func newGstProber() Prober { return &DeviceMonitorProber{Run: execRunner} }

// Name implements Prober.
func (p *DeviceMonitorProber) Name() Strategy { return StrategyGst }

// Probe implements Prober.
func (p *DeviceMonitorProber) Probe(ctx context.Context, device string, format streams.InputFormat) ([]resolution.Resolution, error) {
	out, err := p.Run(ctx, DeviceMonitorBinary, "Video/Source")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DeviceMonitorBinary, err)
	}
	caps, ok := ParseDeviceMonitor(out)[device]
	if !ok {
		return nil, fmt.Errorf("%s does not list %s", DeviceMonitorBinary, device)
	}
	return capsModes(caps, format), nil
}

// ParseDeviceMonitor maps device paths to their serialized caps.
func ParseDeviceMonitor(out []byte) map[string]string {
	devices := make(map[string]string)

	var caps strings.Builder
	inCaps := false
	path := ""
	flush := func() {
		if path != "" && caps.Len() > 0 {
			devices[path] = caps.String()
		}
		caps.Reset()
		path = ""
		inCaps = false
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Device found"):
			flush()
		case strings.HasPrefix(line, "caps"):
			if _, value, ok := strings.Cut(line, ":"); ok {
				caps.WriteString(strings.TrimSpace(value))
				inCaps = true
			}
		case strings.HasPrefix(line, "properties:"):
			inCaps = false
		case inCaps && line != "":
			caps.WriteString(" ")
			caps.WriteString(line)
		default:
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "device.path", "api.v4l2.path":
				path = strings.TrimSpace(value)
			}
		}
	}
	flush()

	return devices
}
