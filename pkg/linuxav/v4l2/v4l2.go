//go:build linux

// Package v4l2 reads capture capabilities from Video4Linux2 device nodes
// with plain ioctls, so it needs no cgo and cross-compiles for the arm
// boards teecast runs on.
//
//	nodes, _ := v4l2.Enumerate()
//	for _, n := range nodes {
//	    dev, err := v4l2.Open(n.Path)
//	    if err != nil {
//	        continue
//	    }
//	    formats, _ := dev.Formats()
//	    for _, f := range formats {
//	        modes, _ := dev.Modes(f.Code)
//	        fmt.Println(f.Code, modes)
//	    }
//	    dev.Close()
//	}
package v4l2

import (
	"bytes"
	"fmt"
	"unsafe"
)

const (
	capVideoCapture = 0x00000001
	capDeviceCaps   = 0x80000000

	fmtFlagEmulated = 0x0002

	bufTypeVideoCapture = 1
)

// FourCC is a V4L2 pixel format code.
type FourCC uint32

// ParseFourCC packs a code such as "MJPG". Short codes are space padded.
func ParseFourCC(code string) FourCC {
	b := []byte((code + "    ")[:4])
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func (c FourCC) String() string {
	return string([]byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)})
}

// Node is a video device as reported by VIDIOC_QUERYCAP.
type Node struct {
	Path     string
	Card     string
	Driver   string
	Bus      string
	StableID string // /dev/v4l/by-id name, or synthesized from the bus
	Caps     uint32
}

// Capture reports whether the node captures video.
func (n Node) Capture() bool {
	return n.Caps&capVideoCapture != 0
}

// PixelFormat is one entry of VIDIOC_ENUM_FMT.
type PixelFormat struct {
	Code        FourCC
	Description string
	Emulated    bool // converted by libv4l rather than the driver
}

// Mode is a frame size with the fastest rate offered for it.
type Mode struct {
	Width  uint32
	Height uint32
	MaxFPS float64
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%g", m.Width, m.Height, m.MaxFPS)
}

// Device is an open video node.
type Device struct {
	path string
	fd   int
}

// Open opens path non-blocking for querying.
func Open(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Close releases the node.
func (d *Device) Close() error {
	return closeFd(d.fd)
}

// Query reads the node's capabilities. Per-node caps are preferred when
// the driver reports them.
func (d *Device) Query() (Node, error) {
	var c v4l2Capability
	if err := ioctl(d.fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return Node{}, fmt.Errorf("query %s: %w", d.path, err)
	}
	caps := c.capabilities
	if caps&capDeviceCaps != 0 {
		caps = c.deviceCaps
	}
	return Node{
		Path:   d.path,
		Card:   cstr(c.card[:]),
		Driver: cstr(c.driver[:]),
		Bus:    cstr(c.busInfo[:]),
		Caps:   caps,
	}, nil
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
