// Package devices discovers capture devices and the native modes they offer.
//
// Mode discovery runs an ordered probe chain: V4L2 ioctls, v4l2-ctl output,
// GStreamer caps, and finally a fixed 1920x1080@30 fallback. A failing
// strategy is logged and the next one is tried, so probing never fails.
package devices

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

// Strategy names a probe strategy.
type Strategy string

// Probe strategies in chain order.
const (
	StrategyV4L2    Strategy = "v4l2-ioctl"
	StrategyV4L2Ctl Strategy = "v4l2-ctl"
	StrategyGst     Strategy = "gstreamer"
	StrategyDefault Strategy = "default"
)

// probeTimeout bounds each external query.
const probeTimeout = 10 * time.Second

// DefaultResolution is reported when every strategy fails.
var DefaultResolution = resolution.Resolution{Width: 1920, Height: 1080, MaxFPS: 30}

// errNoModes is returned by a strategy that ran but found nothing usable.
var errNoModes = errors.New("no capture modes reported")

// Prober is one strategy of the probe chain.
type Prober interface {
	Name() Strategy
	Probe(ctx context.Context, device string, format streams.InputFormat) ([]resolution.Resolution, error)
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ProbeResult is the outcome of a chain run.
type ProbeResult struct {
	Device      string
	Strategy    Strategy
	Resolutions []resolution.Resolution
	// Failures holds one PROBE_ERROR per strategy that did not succeed.
	Failures []error
}

// Chain runs probers in order until one reports modes.
type Chain struct {
	probers []Prober
	logger  *slog.Logger
}

// NewChain creates a chain from explicit probers.
func NewChain(probers ...Prober) *Chain {
	return &Chain{probers: probers, logger: logging.GetLogger("devices")}
}

// DefaultChain returns the standard chain: ioctl, v4l2-ctl, GStreamer.
func DefaultChain() *Chain {
	return NewChain(
		newIoctlProber(),
		&V4L2CtlProber{Run: execRunner},
		newGstProber(),
	)
}

// Probe returns the modes of device. It always returns at least one mode.
func (c *Chain) Probe(ctx context.Context, device string, format streams.InputFormat) ProbeResult {
	result := ProbeResult{Device: device}

	for _, p := range c.probers {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		found, err := p.Probe(pctx, device, format)
		cancel()
		if err == nil && len(found) == 0 {
			err = errNoModes
		}
		if err != nil {
			perr := streams.NewStreamError(streams.ErrCodeProbeError, string(p.Name())+" probe failed", err)
			result.Failures = append(result.Failures, perr)
			c.logger.Debug("Probe strategy failed", "device", device, "strategy", p.Name(), "error", err)
			continue
		}

		result.Strategy = p.Name()
		result.Resolutions = resolution.Dedupe(found)
		c.logger.Info("Probed capture modes", "device", device, "strategy", p.Name(), "modes", len(result.Resolutions))
		return result
	}

	c.logger.Warn("All probe strategies failed, using default mode",
		"device", device, "mode", DefaultResolution.String())
	result.Strategy = StrategyDefault
	result.Resolutions = []resolution.Resolution{DefaultResolution}
	return result
}

// Match is the capture mode chosen for a requested output.
type Match struct {
	Resolution resolution.Resolution
	Framerate  int
	Strategy   Strategy
}

// AutoDetect probes device and picks the mode closest to the target output.
// The returned Framerate is lowered when the chosen mode cannot reach fps.
func (c *Chain) AutoDetect(ctx context.Context, device string, format streams.InputFormat, width, height, fps int) Match {
	result := c.Probe(ctx, device, format)
	chosen, ok := resolution.Select(result.Resolutions, width, height, float64(fps))
	if !ok {
		chosen = DefaultResolution
	}

	effective := resolution.EffectiveFramerate(chosen, fps)
	if effective < fps {
		c.logger.Warn("Camera cannot reach requested framerate",
			"device", device, "mode", chosen.String(), "requested", fps, "using", effective)
	}

	return Match{Resolution: chosen, Framerate: effective, Strategy: result.Strategy}
}

// fourCCFor maps an input format onto the V4L2 pixel format code it captures.
func fourCCFor(format streams.InputFormat) string {
	switch format {
	case streams.InputMJPEG:
		return "MJPG"
	case streams.InputH264:
		return "H264"
	case streams.InputNV12:
		return "NV12"
	case streams.InputRaw:
		return "YUYV"
	}
	return ""
}
