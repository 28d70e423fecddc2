package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/smazurov/teecast/internal/streams"
)

// CameraFile is the `camera` block of a fan-out config.
type CameraFile struct {
	Device      string `json:"device"`
	InputFormat string `json:"input_format"`
	InputWidth  int    `json:"input_width,omitempty"`
	InputHeight int    `json:"input_height,omitempty"`
	Framerate   int    `json:"framerate"`
}

// StreamFile is one entry of a `streams` array. Fan-out and multi-camera
// configs share it; output_width/output_height are accepted as aliases of
// width/height.
type StreamFile struct {
	Name         string `json:"name,omitempty"`
	Enable       *bool  `json:"enable,omitempty"`
	Mount        string `json:"mount,omitempty"`
	Port         int    `json:"port,omitempty"`
	Source       string `json:"source,omitempty"`
	Device       string `json:"device,omitempty"`
	URL          string `json:"url,omitempty"`
	InputFormat  string `json:"input_format,omitempty"`
	InputCodec   string `json:"input_codec,omitempty"`
	InputWidth   int    `json:"input_width,omitempty"`
	InputHeight  int    `json:"input_height,omitempty"`
	Codec        string `json:"codec,omitempty"`
	Bitrate      int    `json:"bitrate,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	OutputWidth  int    `json:"output_width,omitempty"`
	OutputHeight int    `json:"output_height,omitempty"`
	Framerate    int    `json:"framerate,omitempty"`
	Flip         int    `json:"flip,omitempty"`
}

// FanoutFile is the on-disk fan-out config.
type FanoutFile struct {
	Camera   CameraFile   `json:"camera"`
	Streams  []StreamFile `json:"streams"`
	OnDemand bool         `json:"on_demand,omitempty"`
}

// StreamsConfig is a validated fan-out config. It is not modified after
// LoadStreams returns; a reload produces a new value.
type StreamsConfig struct {
	Path     string
	Camera   streams.CameraConfig
	Streams  []streams.StreamSpec
	OnDemand bool
}

// Enabled returns the enabled specs in config order.
func (c *StreamsConfig) Enabled() []streams.StreamSpec {
	return streams.Enabled(c.Streams)
}

// LoadStreams reads and validates a fan-out config. Every failure is a
// CONFIG_ERROR.
func LoadStreams(path string) (*StreamsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeConfigError, "cannot read "+path, err)
	}
	cfg, err := ParseStreams(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// ParseStreams validates a fan-out config document.
func ParseStreams(data []byte) (*StreamsConfig, error) {
	var file FanoutFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, err
	}

	camera, err := cameraConfig(file.Camera)
	if err != nil {
		return nil, err
	}

	specs := make([]streams.StreamSpec, 0, len(file.Streams))
	for i, sf := range file.Streams {
		spec, err := fanoutStream(i, sf)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	enabled := streams.Enabled(specs)
	if len(enabled) == 0 {
		return nil, streams.ConfigError("no enabled output streams")
	}
	for _, s := range enabled {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	if err := streams.CheckEndpoints(enabled, nil); err != nil {
		return nil, err
	}

	return &StreamsConfig{
		Camera:   camera,
		Streams:  specs,
		OnDemand: file.OnDemand,
	}, nil
}

func cameraConfig(c CameraFile) (streams.CameraConfig, error) {
	if c.Device == "" {
		return streams.CameraConfig{}, streams.ConfigError("camera.device is required")
	}
	format := c.InputFormat
	if format == "" {
		format = string(streams.InputMJPEG)
	}
	input, err := streams.ParseInputFormat(format)
	if err != nil {
		return streams.CameraConfig{}, err
	}
	if c.InputWidth < 0 || c.InputHeight < 0 || (c.InputWidth == 0) != (c.InputHeight == 0) {
		return streams.CameraConfig{}, streams.ConfigError("camera input size %dx%d must set both dimensions", c.InputWidth, c.InputHeight)
	}
	fps := c.Framerate
	if fps == 0 {
		fps = 30
	}
	if fps < 0 {
		return streams.CameraConfig{}, streams.ConfigError("camera.framerate must be positive")
	}
	return streams.CameraConfig{
		Device:      c.Device,
		InputFormat: input,
		Width:       c.InputWidth,
		Height:      c.InputHeight,
		Framerate:   fps,
	}, nil
}

func fanoutStream(i int, sf StreamFile) (streams.StreamSpec, error) {
	if sf.Name == "" {
		sf.Name = fmt.Sprintf("stream%d", i+1)
	}
	codec, err := streams.ParseCodec(orDefault(sf.Codec, string(streams.CodecH264)))
	if err != nil {
		return streams.StreamSpec{}, fmt.Errorf("stream %q: %w", sf.Name, err)
	}
	w, h := outputSize(sf)

	spec := streams.StreamSpec{
		Name:      sf.Name,
		Enabled:   sf.Enable == nil || *sf.Enable,
		Width:     w,
		Height:    h,
		Framerate: sf.Framerate,
		Bitrate:   sf.Bitrate,
		Codec:     codec,
		Port:      sf.Port,
		Mount:     sf.Mount,
	}
	if spec.Framerate == 0 {
		spec.Framerate = 30
	}

	// A per-stream source is kept for display; the fan-out graph always
	// captures from the camera block.
	if sf.Source != "" {
		src, err := sourceSpec(sf)
		if err != nil {
			return streams.StreamSpec{}, fmt.Errorf("stream %q: %w", sf.Name, err)
		}
		spec.Source = &src
	}
	return spec, nil
}

// sourceSpec converts the capture fields of a stream entry.
func sourceSpec(sf StreamFile) (streams.SourceSpec, error) {
	kind, err := streams.ParseSourceKind(orDefault(sf.Source, string(streams.SourceTest)))
	if err != nil {
		return streams.SourceSpec{}, err
	}
	input, err := streams.ParseInputFormat(orDefault(sf.InputFormat, string(streams.InputMJPEG)))
	if err != nil {
		return streams.SourceSpec{}, err
	}
	inCodec, err := streams.ParseCodec(orDefault(sf.InputCodec, string(streams.CodecH264)))
	if err != nil {
		return streams.SourceSpec{}, err
	}
	if sf.Flip < 0 || sf.Flip > 7 {
		return streams.SourceSpec{}, streams.ConfigError("flip %d out of range 0-7", sf.Flip)
	}
	if kind == streams.SourceRTSP && sf.URL == "" {
		return streams.SourceSpec{}, streams.ConfigError("rtsp source requires url")
	}
	return streams.SourceSpec{
		Kind:        kind,
		Device:      orDefault(sf.Device, "/dev/video0"),
		URL:         sf.URL,
		InputFormat: input,
		InputCodec:  inCodec,
		InputWidth:  sf.InputWidth,
		InputHeight: sf.InputHeight,
		Flip:        sf.Flip,
	}, nil
}

func outputSize(sf StreamFile) (int, int) {
	w, h := sf.Width, sf.Height
	if sf.OutputWidth > 0 {
		w = sf.OutputWidth
	}
	if sf.OutputHeight > 0 {
		h = sf.OutputHeight
	}
	return w, h
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decodeStrict rejects unknown fields so typos surface as config errors.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return streams.NewStreamError(streams.ErrCodeConfigError, "invalid JSON config", err)
	}
	return nil
}
