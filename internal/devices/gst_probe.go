//go:build gst

package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

var gstInit sync.Once

// capsProber queries the src pad caps of a v4l2src element in READY.
type capsProber struct{}

func newGstProber() Prober { return capsProber{} }

func (capsProber) Name() Strategy { return StrategyGst }

func (capsProber) Probe(_ context.Context, device string, format streams.InputFormat) ([]resolution.Resolution, error) {
	gstInit.Do(func() { gst.Init(nil) })

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("create v4l2src: %w", err)
	}
	if err := src.SetProperty("device", device); err != nil {
		return nil, fmt.Errorf("set device: %w", err)
	}
	if err := src.SetState(gst.StateReady); err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	defer func() { _ = src.SetState(gst.StateNull) }()

	pad := src.GetStaticPad("src")
	if pad == nil {
		return nil, errors.New("v4l2src has no src pad")
	}
	caps := pad.QueryCaps(nil)
	if caps == nil {
		return nil, errors.New("caps query returned nothing")
	}
	return capsModes(caps.String(), format), nil
}
