package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"
)

// SampleMulti returns the multi-camera sample config.
func SampleMulti() MultiFile {
	return MultiFile{
		Port: DefaultRTSPPort,
		Streams: []StreamFile{
			{
				Name:         "USB Camera",
				Mount:        "/usb",
				Source:       "usb",
				Device:       "/dev/video0",
				OutputWidth:  1920,
				OutputHeight: 1080,
				Codec:        "h265",
				Bitrate:      4000,
				Framerate:    30,
			},
			{
				Name:         "Test Source",
				Mount:        "/test",
				Source:       "test",
				OutputWidth:  1280,
				OutputHeight: 720,
				Codec:        "h264",
				Bitrate:      2000,
			},
			{
				Name:         "IP Camera",
				Mount:        "/ipcam",
				Source:       "rtsp",
				URL:          "rtsp://192.168.1.100:554/stream",
				InputCodec:   "h264",
				OutputWidth:  1920,
				OutputHeight: 1080,
				Codec:        "h265",
			},
		},
	}
}

// SampleFanout returns the fan-out sample config: one camera, two sizes.
func SampleFanout() FanoutFile {
	enabled := true
	return FanoutFile{
		Camera: CameraFile{
			Device:      "/dev/video0",
			InputFormat: "mjpeg",
			InputWidth:  1920,
			InputHeight: 1080,
			Framerate:   30,
		},
		Streams: []StreamFile{
			{Name: "camera0", Enable: &enabled, Port: 8554, Mount: "/stream", Width: 1920, Height: 1080, Codec: "h265", Bitrate: 8000},
			{Name: "camera1", Enable: &enabled, Port: 8555, Mount: "/stream", Width: 1280, Height: 720, Framerate: 15, Codec: "h265", Bitrate: 4000},
		},
	}
}

// MarshalSample renders a sample with a two-space indent and a trailing newline.
func MarshalSample(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sample config: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteSample atomically replaces path with data.
func WriteSample(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}
