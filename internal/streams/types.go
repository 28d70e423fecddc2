package streams

import (
	"fmt"
	"strings"
)

// Codec is an output (or RTSP ingest) video codec.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// ParseCodec accepts h264/h265 and the avc/hevc aliases.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h264", "avc":
		return CodecH264, nil
	case "h265", "hevc":
		return CodecH265, nil
	}
	return "", ConfigError("unsupported codec %q", s)
}

// InputFormat is the pixel format a camera delivers.
type InputFormat string

const (
	InputMJPEG InputFormat = "mjpeg"
	InputH264  InputFormat = "h264"
	InputNV12  InputFormat = "nv12"
	InputRaw   InputFormat = "raw"
)

// ParseInputFormat maps config spellings onto the closed input format set.
// yuyv and yuy2 are treated as raw.
func ParseInputFormat(s string) (InputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mjpeg", "mjpg", "jpeg":
		return InputMJPEG, nil
	case "h264":
		return InputH264, nil
	case "nv12":
		return InputNV12, nil
	case "raw", "yuyv", "yuy2":
		return InputRaw, nil
	}
	return "", ConfigError("unknown input format %q", s)
}

// SourceKind selects the capture element of a standalone pipeline.
type SourceKind string

const (
	SourceUSB  SourceKind = "usb"
	SourceCSI  SourceKind = "csi"
	SourceRTSP SourceKind = "rtsp"
	SourceTest SourceKind = "test"
)

// ParseSourceKind validates a source name.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case SourceUSB:
		return SourceUSB, nil
	case SourceCSI:
		return SourceCSI, nil
	case SourceRTSP:
		return SourceRTSP, nil
	case SourceTest:
		return SourceTest, nil
	}
	return "", ConfigError("unknown source %q", s)
}

// CameraConfig describes the shared capture device of a fan-out runtime.
// Width and Height of zero mean auto-detect.
type CameraConfig struct {
	Device      string
	InputFormat InputFormat
	Width       int
	Height      int
	Framerate   int
}

// HasResolution reports whether an explicit input size was configured.
func (c CameraConfig) HasResolution() bool {
	return c.Width > 0 && c.Height > 0
}

// SourceSpec describes a standalone capture source (single and multi-camera modes).
type SourceSpec struct {
	Kind        SourceKind
	Device      string
	URL         string
	InputFormat InputFormat
	InputCodec  Codec
	InputWidth  int
	InputHeight int
	Flip        int
}

// StreamSpec is one requested RTSP output.
type StreamSpec struct {
	Name      string
	Enabled   bool
	Width     int
	Height    int
	Framerate int
	Bitrate   int // kbps
	Codec     Codec
	Port      int
	Mount     string

	// Source is set only for streams that own their capture pipeline.
	Source *SourceSpec
}

// Size returns the output size as WxH.
func (s StreamSpec) Size() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Validate checks the per-stream fields that do not depend on other streams.
func (s StreamSpec) Validate() error {
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return ConfigError("stream %q: invalid output size %dx%d", s.Name, s.Width, s.Height)
	case s.Framerate <= 0:
		return ConfigError("stream %q: framerate must be positive", s.Name)
	case s.Bitrate <= 0:
		return ConfigError("stream %q: bitrate must be positive", s.Name)
	case s.Port <= 0 || s.Port > 65535:
		return ConfigError("stream %q: invalid port %d", s.Name, s.Port)
	case !strings.HasPrefix(s.Mount, "/"):
		return ConfigError("stream %q: mount %q must start with /", s.Name, s.Mount)
	}
	if _, err := ParseCodec(string(s.Codec)); err != nil {
		return fmt.Errorf("stream %q: %w", s.Name, err)
	}
	return nil
}

// Enabled returns the enabled streams in configuration order.
func Enabled(specs []StreamSpec) []StreamSpec {
	out := make([]StreamSpec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
