//go:build linux

package v4l2

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFourCC(t *testing.T) {
	tests := []struct {
		code string
		want FourCC
	}{
		{"YUYV", 0x56595559},
		{"MJPG", 0x47504A4D},
		{"H264", 0x34363248},
		{"HEVC", 0x43564548},
		{"NV12", 0x3231564E},
	}
	for _, tt := range tests {
		if got := ParseFourCC(tt.code); got != tt.want {
			t.Errorf("ParseFourCC(%q) = 0x%08X, want 0x%08X", tt.code, uint32(got), uint32(tt.want))
		}
		if got := tt.want.String(); got != tt.code {
			t.Errorf("FourCC(0x%08X).String() = %q, want %q", uint32(tt.want), got, tt.code)
		}
	}
	if got := ParseFourCC("GR").String(); got != "GR  " {
		t.Errorf("short code padded to %q", got)
	}
	if got := FourCC(0x01020304).String(); got != "\x04\x03\x02\x01" {
		t.Errorf("byte order: %q", got)
	}
}

func TestIntervalFPS(t *testing.T) {
	tests := []struct {
		in   interval
		want float64
	}{
		{interval{1, 60}, 60},
		{interval{1001, 30000}, 30000.0 / 1001.0},
		{interval{1000000, 60000000}, 60},
		{interval{0, 60}, 0},
		{interval{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.in.fps(); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("%v.fps() = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestSizesWithin(t *testing.T) {
	tests := []struct {
		name string
		s    v4l2FrmsizeStepwise
		want [][2]uint32
	}{
		{"up to 720p", v4l2FrmsizeStepwise{minWidth: 640, maxWidth: 1280, minHeight: 480, maxHeight: 720},
			[][2]uint32{{640, 480}, {800, 600}, {1280, 720}}},
		{"exact 1080p", v4l2FrmsizeStepwise{minWidth: 1920, maxWidth: 1920, minHeight: 1080, maxHeight: 1080},
			[][2]uint32{{1920, 1080}}},
		{"nothing common", v4l2FrmsizeStepwise{minWidth: 16, maxWidth: 64, minHeight: 16, maxHeight: 64}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sizesWithin(&tt.s)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFastestWithin(t *testing.T) {
	tests := []struct {
		name     string
		min, max v4l2Fract
		want     float64
	}{
		{"10 to 30 fps", v4l2Fract{1, 30}, v4l2Fract{1, 10}, 30},
		{"up to 55 fps", v4l2Fract{1, 55}, v4l2Fract{1, 1}, 50},
		{"odd range", v4l2Fract{1, 33}, v4l2Fract{1, 31}, 33},
		{"empty", v4l2Fract{}, v4l2Fract{}, 0},
	}
	for _, tt := range tests {
		s := v4l2FrmivalStepwise{min: tt.min, max: tt.max}
		if got := fastestWithin(&s); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("%s: fastestWithin = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestStableID(t *testing.T) {
	dir := t.TempDir()
	for name, target := range map[string]string{
		"usb-Logitech_C920-video-index0": "../../video0",
		"usb-Logitech_C920-video-index1": "../../video1",
	} {
		if err := os.Symlink(target, filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	byID := stableNames(dir)

	tests := []struct {
		name   string
		node   Node
		kernel string
		index  int
		want   string
	}{
		{"by-id link", Node{Bus: "usb-0000:00:14.0-1"}, "video0", 0, "usb-Logitech_C920-video-index0"},
		{"usb without link", Node{Bus: "usb-0000:00:14.0-2"}, "video4", 0, "usb-0000:00:14.0-2-video-index0"},
		{"platform", Node{Bus: "fe801000.csi"}, "video10", 0, "platform-fe801000.csi-video-index0"},
	}
	for _, tt := range tests {
		if got := stableID(tt.node, tt.kernel, tt.index, byID); got != tt.want {
			t.Errorf("%s: stableID = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestOpenMissingNode(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "video99")); err == nil {
		t.Error("expected an error opening a missing node")
	}
}
