package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/teecast/internal/streams"
)

const fanoutDoc = `{
  "camera": {"device": "/dev/video0", "input_format": "mjpeg", "input_width": 1920, "input_height": 1080, "framerate": 30},
  "streams": [
    {"name": "main", "port": 8554, "mount": "/stream", "width": 1920, "height": 1080, "codec": "h265", "bitrate": 8000},
    {"port": 8555, "mount": "/stream", "output_width": 1280, "output_height": 720, "framerate": 15, "bitrate": 4000},
    {"name": "off", "enable": false, "port": 8556, "mount": "/stream", "width": 640, "height": 480, "bitrate": 1000}
  ]
}`

func TestParseStreams(t *testing.T) {
	cfg, err := ParseStreams([]byte(fanoutDoc))
	if err != nil {
		t.Fatalf("ParseStreams failed: %v", err)
	}

	if cfg.Camera.Device != "/dev/video0" || cfg.Camera.InputFormat != streams.InputMJPEG || !cfg.Camera.HasResolution() {
		t.Errorf("unexpected camera %+v", cfg.Camera)
	}
	if len(cfg.Streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(cfg.Streams))
	}

	second := cfg.Streams[1]
	if second.Name != "stream2" {
		t.Errorf("expected default name stream2, got %q", second.Name)
	}
	if second.Width != 1280 || second.Height != 720 {
		t.Errorf("output_width alias not applied: %s", second.Size())
	}
	if second.Codec != streams.CodecH264 {
		t.Errorf("expected default codec h264, got %s", second.Codec)
	}
	if !second.Enabled {
		t.Error("enable should default to true")
	}
	if cfg.Streams[0].Framerate != 30 {
		t.Errorf("expected default framerate 30, got %d", cfg.Streams[0].Framerate)
	}

	enabled := cfg.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "main" || enabled[1].Name != "stream2" {
		t.Errorf("unexpected enabled set %+v", enabled)
	}
}

func TestParseStreamsErrors(t *testing.T) {
	camera := `"camera": {"device": "/dev/video0"}`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "invalid json",
			doc:  `{"camera": `,
			want: "invalid JSON",
		},
		{
			name: "unknown field",
			doc:  `{` + camera + `, "streamz": []}`,
			want: "invalid JSON",
		},
		{
			name: "missing device",
			doc:  `{"camera": {}, "streams": [{"port": 8554, "mount": "/a", "width": 640, "height": 480, "bitrate": 1}]}`,
			want: "camera.device",
		},
		{
			name: "unknown input format",
			doc:  `{"camera": {"device": "/dev/video0", "input_format": "bayer"}, "streams": []}`,
			want: "unknown input format",
		},
		{
			name: "half camera size",
			doc:  `{"camera": {"device": "/dev/video0", "input_width": 1920}, "streams": []}`,
			want: "both dimensions",
		},
		{
			name: "no enabled streams",
			doc:  `{` + camera + `, "streams": [{"enable": false, "port": 8554, "mount": "/a"}]}`,
			want: "no enabled output streams",
		},
		{
			name: "bad codec",
			doc:  `{` + camera + `, "streams": [{"codec": "vp9", "port": 8554, "mount": "/a", "width": 640, "height": 480, "bitrate": 1}]}`,
			want: "unsupported codec",
		},
		{
			name: "bad mount",
			doc:  `{` + camera + `, "streams": [{"port": 8554, "mount": "a", "width": 640, "height": 480, "bitrate": 1}]}`,
			want: "must start with /",
		},
		{
			name: "duplicate endpoint",
			doc: `{` + camera + `, "streams": [
				{"name": "a", "port": 8554, "mount": "/s", "width": 640, "height": 480, "bitrate": 1},
				{"name": "b", "port": 8554, "mount": "/s", "width": 320, "height": 240, "bitrate": 1}]}`,
			want: "both use port 8554",
		},
		{
			name: "rtsp source without url",
			doc:  `{` + camera + `, "streams": [{"source": "rtsp", "port": 8554, "mount": "/a", "width": 640, "height": 480, "bitrate": 1}]}`,
			want: "requires url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStreams([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !streams.IsConfigError(err) {
				t.Errorf("expected CONFIG_ERROR, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseStreamsKeepsSource(t *testing.T) {
	doc := `{"camera": {"device": "/dev/video0"}, "streams": [
		{"source": "usb", "device": "/dev/video2", "flip": 2, "port": 8554, "mount": "/a", "width": 640, "height": 480, "bitrate": 500}]}`
	cfg, err := ParseStreams([]byte(doc))
	if err != nil {
		t.Fatalf("ParseStreams failed: %v", err)
	}
	src := cfg.Streams[0].Source
	if src == nil || src.Kind != streams.SourceUSB || src.Device != "/dev/video2" || src.Flip != 2 {
		t.Errorf("unexpected source %+v", src)
	}
	if cfg.Camera.Framerate != 30 || cfg.Camera.InputFormat != streams.InputMJPEG {
		t.Errorf("camera defaults not applied: %+v", cfg.Camera)
	}
}

func TestLoadStreamsMissingFile(t *testing.T) {
	_, err := LoadStreams(filepath.Join(t.TempDir(), "nope.json"))
	if !streams.IsConfigError(err) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestParseMultiDefaults(t *testing.T) {
	cfg, err := ParseMulti([]byte(`{"streams": [{}, {"name": "cam", "source": "usb", "port": 9000, "mount": "/cam"}]}`))
	if err != nil {
		t.Fatalf("ParseMulti failed: %v", err)
	}
	if cfg.Port != DefaultRTSPPort {
		t.Errorf("expected port %d, got %d", DefaultRTSPPort, cfg.Port)
	}
	if len(cfg.Streams) != 2 || len(cfg.Skipped) != 0 {
		t.Fatalf("expected 2 streams and no skips, got %d and %v", len(cfg.Streams), cfg.Skipped)
	}

	first := cfg.Streams[0]
	if first.Name != "Stream 1" || first.Mount != "/stream1" || first.Port != DefaultRTSPPort {
		t.Errorf("unexpected defaults %+v", first)
	}
	if first.Codec != streams.CodecH265 || first.Bitrate != 4000 || first.Framerate != 30 || first.Size() != "1920x1080" {
		t.Errorf("unexpected encode defaults %+v", first)
	}
	if first.Source == nil || first.Source.Kind != streams.SourceTest || first.Source.InputCodec != streams.CodecH264 {
		t.Errorf("unexpected source defaults %+v", first.Source)
	}

	second := cfg.Streams[1]
	if second.Port != 9000 || second.Source.Kind != streams.SourceUSB || second.Source.Device != "/dev/video0" {
		t.Errorf("unexpected stream %+v", second)
	}
}

func TestParseMultiSkipsInvalid(t *testing.T) {
	doc := `{"streams": [
		{"name": "good", "mount": "/good"},
		{"name": "nourl", "source": "rtsp", "mount": "/ip"},
		{"name": "badcodec", "codec": "vp8", "mount": "/vp8"},
		{"name": "dup", "mount": "/good"}
	]}`
	cfg, err := ParseMulti([]byte(doc))
	if err != nil {
		t.Fatalf("ParseMulti failed: %v", err)
	}
	if len(cfg.Streams) != 1 || cfg.Streams[0].Name != "good" {
		t.Errorf("expected only the good stream, got %+v", cfg.Streams)
	}
	if len(cfg.Skipped) != 3 {
		t.Fatalf("expected 3 skipped entries, got %v", cfg.Skipped)
	}
	for i, name := range []string{"nourl", "badcodec", "dup"} {
		if !strings.Contains(cfg.Skipped[i].Error(), name) {
			t.Errorf("skip %d should name %q: %v", i, name, cfg.Skipped[i])
		}
	}
}

func TestParseMultiNothingUsable(t *testing.T) {
	_, err := ParseMulti([]byte(`{"streams": [{"source": "rtsp"}]}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !streams.IsConfigError(err) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "requires url") {
		t.Errorf("expected skipped reason in error, got %v", err)
	}
}

func TestSamplesParse(t *testing.T) {
	data, err := MarshalSample(SampleMulti())
	if err != nil {
		t.Fatal(err)
	}
	multi, err := ParseMulti(data)
	if err != nil {
		t.Fatalf("multi sample does not parse: %v", err)
	}
	if len(multi.Streams) != 3 || len(multi.Skipped) != 0 {
		t.Errorf("expected 3 usable sample streams, got %d (%v)", len(multi.Streams), multi.Skipped)
	}

	data, err = MarshalSample(SampleFanout())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") || !strings.Contains(string(data), "\n  \"camera\"") {
		t.Errorf("unexpected sample layout:\n%s", data)
	}
	fanout, err := ParseStreams(data)
	if err != nil {
		t.Fatalf("fan-out sample does not parse: %v", err)
	}
	if len(fanout.Enabled()) != 2 {
		t.Errorf("expected 2 enabled sample streams, got %d", len(fanout.Enabled()))
	}
}

func TestWriteSampleReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.json")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := MarshalSample(SampleFanout())
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSample(path, data); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Errorf("file not replaced, got %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}
}
