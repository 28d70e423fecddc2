package devices

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Camera is one capture node found on the host.
type Camera struct {
	Path    string
	Name    string
	ID      string
	Driver  string
	BusInfo string
}

// Lister enumerates cameras and their formats.
type Lister struct {
	Run CommandRunner
	// Enumerate defaults to the sysfs and VIDIOC_QUERYCAP scan.
	Enumerate func() ([]Camera, error)
	// Describe defaults to the ioctl enumeration grouped by format.
	Describe func(device string) (string, error)
	// Exists reports whether a device node is present.
	Exists func(path string) bool
}

// NewLister returns a Lister backed by the host.
func NewLister() *Lister {
	return &Lister{
		Run:       execRunner,
		Enumerate: enumerateCameras,
		Describe:  describeFormats,
		Exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// ErrNoCameras is returned when no capture device could be found.
var ErrNoCameras = errors.New("no cameras found")

// ListCameras returns the capture devices on the host. When the ioctl scan
// finds nothing it probes /dev/video0 to /dev/video9 with v4l2-ctl --info.
func (l *Lister) ListCameras(ctx context.Context) ([]Camera, error) {
	cameras, err := l.Enumerate()
	if err == nil && len(cameras) > 0 {
		return cameras, nil
	}

	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/dev/video%d", i)
		if !l.Exists(path) {
			continue
		}
		cam := Camera{Path: path, Name: "unknown"}

		qctx, cancel := context.WithTimeout(ctx, probeTimeout)
		out, qerr := l.Run(qctx, V4L2CtlBinary, "--device", path, "--info")
		cancel()
		if qerr == nil {
			info := ParseInfo(out)
			if name := info["Card type"]; name != "" {
				cam.Name = name
			}
			cam.Driver = info["Driver name"]
			cam.BusInfo = info["Bus info"]
		}
		cameras = append(cameras, cam)
	}

	if len(cameras) == 0 {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCameras, err)
		}
		return nil, ErrNoCameras
	}
	return cameras, nil
}

// ListFormats returns a human readable list of the device's formats.
// v4l2-ctl output is returned verbatim when the tool is available.
func (l *Lister) ListFormats(ctx context.Context, device string) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, probeTimeout)
	out, err := l.Run(qctx, V4L2CtlBinary, "--device", device, "--list-formats-ext")
	cancel()
	if err == nil && len(out) > 0 {
		return string(out), nil
	}

	text, derr := l.Describe(device)
	if derr != nil {
		if err != nil {
			return "", fmt.Errorf("query %s: %w", device, errors.Join(err, derr))
		}
		return "", fmt.Errorf("query %s: %w", device, derr)
	}
	return text, nil
}
