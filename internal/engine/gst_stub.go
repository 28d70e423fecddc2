//go:build !gst

package engine

import "errors"

func newInProcess(Options) (Engine, error) {
	return nil, errors.New("in-process engine requires a build with -tags gst")
}
