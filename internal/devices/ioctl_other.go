//go:build !linux

package devices

import (
	"context"
	"errors"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

var errNoV4L2 = errors.New("V4L2 is only available on Linux")

type ioctlProber struct{}

func newIoctlProber() Prober { return ioctlProber{} }

func (ioctlProber) Name() Strategy { return StrategyV4L2 }

func (ioctlProber) Probe(context.Context, string, streams.InputFormat) ([]resolution.Resolution, error) {
	return nil, errNoV4L2
}

func enumerateCameras() ([]Camera, error) {
	return nil, errNoV4L2
}

func describeFormats(string) (string, error) {
	return "", errNoV4L2
}
