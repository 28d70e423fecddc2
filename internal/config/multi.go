package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/smazurov/teecast/internal/streams"
)

// DefaultRTSPPort is the listener port when a config does not name one.
const DefaultRTSPPort = 8554

// MultiFile is the on-disk multi-camera config.
type MultiFile struct {
	Port     int          `json:"port,omitempty"`
	OnDemand bool         `json:"on_demand,omitempty"`
	Streams  []StreamFile `json:"streams"`
}

// MultiConfig is a loaded multi-camera config. Every stream owns its source.
type MultiConfig struct {
	Path     string
	Port     int
	OnDemand bool
	Streams  []streams.StreamSpec
	// Skipped holds one error per stream entry that failed validation.
	Skipped []error
}

// LoadMulti reads a multi-camera config. Invalid entries are skipped and
// reported in Skipped; an unreadable file or a config with no usable
// stream is an error.
func LoadMulti(path string) (*MultiConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeConfigError, "cannot read "+path, err)
	}
	cfg, err := ParseMulti(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// ParseMulti applies per-stream defaults and validates each entry.
func ParseMulti(data []byte) (*MultiConfig, error) {
	var file MultiFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, err
	}

	cfg := &MultiConfig{Port: file.Port, OnDemand: file.OnDemand}
	if cfg.Port == 0 {
		cfg.Port = DefaultRTSPPort
	}

	seen := make(map[string]string)
	for i, sf := range file.Streams {
		spec, err := multiStream(i, sf, cfg.Port)
		if err != nil {
			cfg.Skipped = append(cfg.Skipped, err)
			continue
		}
		if spec.Enabled {
			key := fmt.Sprintf("%d%s", spec.Port, spec.Mount)
			if other, dup := seen[key]; dup {
				cfg.Skipped = append(cfg.Skipped, streams.ConfigError(
					"stream %q: port %d mount %s already used by %q", spec.Name, spec.Port, spec.Mount, other))
				continue
			}
			seen[key] = spec.Name
		}
		cfg.Streams = append(cfg.Streams, spec)
	}

	enabled := streams.Enabled(cfg.Streams)
	if len(enabled) == 0 {
		return nil, errors.Join(append([]error{streams.ConfigError("no enabled output streams")}, cfg.Skipped...)...)
	}
	return cfg, nil
}

func multiStream(i int, sf StreamFile, port int) (streams.StreamSpec, error) {
	n := i + 1
	if sf.Name == "" {
		sf.Name = fmt.Sprintf("Stream %d", n)
	}
	if sf.Mount == "" {
		sf.Mount = fmt.Sprintf("/stream%d", n)
	}
	if sf.Port == 0 {
		sf.Port = port
	}
	if sf.Source == "" {
		sf.Source = string(streams.SourceTest)
	}
	if sf.InputCodec == "" {
		sf.InputCodec = string(streams.CodecH264)
	}
	if sf.Bitrate == 0 {
		sf.Bitrate = 4000
	}
	if sf.Framerate == 0 {
		sf.Framerate = 30
	}
	w, h := outputSize(sf)
	if w == 0 {
		w = 1920
	}
	if h == 0 {
		h = 1080
	}

	codec, err := streams.ParseCodec(orDefault(sf.Codec, string(streams.CodecH265)))
	if err != nil {
		return streams.StreamSpec{}, fmt.Errorf("stream %q: %w", sf.Name, err)
	}
	src, err := sourceSpec(sf)
	if err != nil {
		return streams.StreamSpec{}, fmt.Errorf("stream %q: %w", sf.Name, err)
	}

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
		Source:    &src,
	}
	if err := spec.Validate(); err != nil {
		return streams.StreamSpec{}, err
	}
	return spec, nil
}
