package pipeline

import (
	"reflect"
	"strings"
	"testing"

	"github.com/smazurov/teecast/internal/streams"
)

func testStream(name string, w, h, bitrate int) streams.StreamSpec {
	return streams.StreamSpec{
		Name:      name,
		Enabled:   true,
		Width:     w,
		Height:    h,
		Framerate: 30,
		Bitrate:   bitrate,
		Codec:     streams.CodecH265,
		Port:      8554,
		Mount:     "/" + name,
	}
}

func buildTestFanout(t *testing.T, camera streams.CameraConfig, specs []streams.StreamSpec) *Graph {
	t.Helper()
	plan, err := streams.NewPlan(camera, specs, streams.DefaultBasePort)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	g, err := BuildFanout(plan.Camera, plan.Groups, plan.Addresses)
	if err != nil {
		t.Fatalf("BuildFanout failed: %v", err)
	}
	return g
}

func TestBuildFanoutRender(t *testing.T) {
	camera := streams.CameraConfig{
		Device:      "/dev/video0",
		InputFormat: streams.InputMJPEG,
		Width:       1920,
		Height:      1080,
		Framerate:   30,
	}
	g := buildTestFanout(t, camera, []streams.StreamSpec{
		testStream("main", 1920, 1080, 4000),
		testStream("sub", 1280, 720, 2000),
		testStream("copy", 1920, 1080, 4000),
	})

	queue := "queue max-size-buffers=10 max-size-time=0 max-size-bytes=0"
	out := func(tee string, port string) string {
		return " " + tee + ". ! " + queue +
			" ! rtph265pay pt=96 config-interval=1 mtu=1400" +
			" ! udpsink host=127.0.0.1 port=" + port + " sync=false async=false buffer-size=4194304"
	}
	enc := func(w, h, bps, tee string) string {
		return " t. ! " + queue + " leaky=downstream" +
			" ! nvvidconv ! video/x-raw(memory:NVMM),width=" + w + ",height=" + h + ",format=NV12" +
			" ! nvv4l2h265enc bitrate=" + bps + " preset-level=1 iframeinterval=10 insert-sps-pps=true maxperf-enable=true" +
			" ! h265parse config-interval=1 ! tee name=" + tee
	}
	want := `v4l2src device="/dev/video0" ! image/jpeg,width=1920,height=1080,framerate=30/1 ! nvv4l2decoder mjpeg=1 ! tee name=t` +
		enc("1920", "1080", "4000000", "tee_0") +
		out("tee_0", "15000") +
		out("tee_0", "15002") +
		enc("1280", "720", "2000000", "tee_1") +
		out("tee_1", "15001")

	if got := Render(g); got != want {
		t.Errorf("Render mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildFanoutDecodeChains(t *testing.T) {
	tests := []struct {
		format streams.InputFormat
		prefix string
	}{
		{streams.InputMJPEG, `v4l2src device="/dev/video2" ! image/jpeg,width=1280,height=720,framerate=25/1 ! nvv4l2decoder mjpeg=1 ! tee name=t`},
		{streams.InputH264, `v4l2src device="/dev/video2" ! video/x-h264,width=1280,height=720,framerate=25/1 ! h264parse ! nvv4l2decoder ! tee name=t`},
		{streams.InputNV12, `v4l2src device="/dev/video2" ! video/x-raw,format=NV12,width=1280,height=720,framerate=25/1 ! nvvidconv ! video/x-raw(memory:NVMM),format=NV12 ! tee name=t`},
		{streams.InputRaw, `v4l2src device="/dev/video2" ! video/x-raw,width=1280,height=720,framerate=25/1 ! nvvidconv ! video/x-raw(memory:NVMM),format=NV12 ! tee name=t`},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			camera := streams.CameraConfig{Device: "/dev/video2", InputFormat: tt.format, Width: 1280, Height: 720, Framerate: 25}
			s := testStream("a", 640, 360, 1000)
			s.Framerate = 25
			g := buildTestFanout(t, camera, []streams.StreamSpec{s})
			got := Render(g)
			if !strings.HasPrefix(got, tt.prefix+" t. !") {
				t.Errorf("Unexpected decode chain:\n got: %s\nwant prefix: %s", got, tt.prefix)
			}
		})
	}
}

func TestBuildFanoutUnknownInputFormat(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: "bayer", Framerate: 30}
	groups := []streams.Group{{Width: 640, Height: 480, Bitrate: 1000, Framerate: 30, Codec: streams.CodecH264, Members: []int{0}}}
	addrs := []streams.Address{{Host: streams.InternalHost, Port: 15000}}

	_, err := BuildFanout(camera, groups, addrs)
	if err == nil {
		t.Fatal("Expected error for unknown input format")
	}
	if !streams.IsConfigError(err) {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestBuildFanoutDefaultsInputSize(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG}
	g := buildTestFanout(t, camera, []streams.StreamSpec{testStream("a", 1920, 1080, 4000)})
	if !strings.Contains(Render(g), "image/jpeg,width=1920,height=1080,framerate=30/1") {
		t.Errorf("Expected default 1920x1080@30 caps, got %s", Render(g))
	}
}

func TestEncoderCountMatchesDistinctSizes(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	sizes := [][2]int{{1920, 1080}, {1280, 720}, {640, 480}}

	for n := 1; n <= 9; n++ {
		specs := make([]streams.StreamSpec, n)
		distinct := make(map[[2]int]bool)
		for i := range specs {
			sz := sizes[(i*7)%len(sizes)]
			if n < 3 {
				sz = sizes[0]
			}
			distinct[sz] = true
			s := testStream("s", sz[0], sz[1], 1000)
			s.Mount = "/s" + string(rune('a'+i))
			specs[i] = s
		}
		g := buildTestFanout(t, camera, specs)
		if got := g.Count(KindEncode); got != len(distinct) {
			t.Errorf("n=%d: expected %d encoders, got %d", n, len(distinct), got)
		}
		if got := g.Count(KindSink); got != n {
			t.Errorf("n=%d: expected %d sinks, got %d", n, n, got)
		}
	}
}

func TestBuildFanoutDeterministic(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputNV12, Width: 1920, Height: 1080, Framerate: 30}
	specs := []streams.StreamSpec{
		testStream("a", 1920, 1080, 4000),
		testStream("b", 1280, 720, 2000),
		testStream("c", 640, 360, 800),
		testStream("d", 1280, 720, 2000),
	}
	first := buildTestFanout(t, camera, specs)
	for i := 0; i < 20; i++ {
		again := buildTestFanout(t, camera, specs)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Graph differs between builds")
		}
		if Render(first) != Render(again) {
			t.Fatal("Rendered description differs between builds")
		}
	}
}

func TestBuildFanoutRateLimitsSlowGroups(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	fast := testStream("fast", 1920, 1080, 4000)
	slow := testStream("slow", 640, 360, 500)
	slow.Framerate = 10

	g := buildTestFanout(t, camera, []streams.StreamSpec{fast, slow})
	if got := g.Count(KindRate); got != 1 {
		t.Fatalf("Expected one videorate, got %d", got)
	}
	if !strings.Contains(Render(g), "leaky=downstream ! videorate drop-only=true max-rate=10 ! nvvidconv ! video/x-raw(memory:NVMM),width=640") {
		t.Errorf("videorate not placed on the slow branch: %s", Render(g))
	}
}

func TestBuildFanoutH264Group(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	s := testStream("avc", 1280, 720, 2000)
	s.Codec = streams.CodecH264
	got := Render(buildTestFanout(t, camera, []streams.StreamSpec{s}))

	for _, want := range []string{"nvv4l2h264enc bitrate=2000000", "h264parse config-interval=1", "rtph264pay pt=96"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in %s", want, got)
		}
	}
	if strings.Contains(got, "265") {
		t.Errorf("Unexpected h265 element in %s", got)
	}
}

func TestGraphEdgeFormats(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	g := buildTestFanout(t, camera, []streams.StreamSpec{testStream("a", 1280, 720, 2000)})

	for _, e := range g.Edges {
		from, to := g.Nodes[e.From], g.Nodes[e.To]
		switch {
		case from.Kind == KindSource && e.Format != FormatJPEG:
			t.Errorf("source edge should carry jpeg, got %s", e.Format)
		case from.Kind == KindEncode && e.Format != FormatH265:
			t.Errorf("encoder edge should carry h265, got %s", e.Format)
		case to.Kind == KindSink && e.Format != FormatRTP:
			t.Errorf("sink edge should carry rtp, got %s", e.Format)
		}
	}
}

func TestBuildStandalone(t *testing.T) {
	out := streams.StreamSpec{Name: "cam", Width: 1280, Height: 720, Framerate: 30, Bitrate: 4000, Codec: streams.CodecH265}
	addr := streams.Address{Host: streams.InternalHost, Port: 15003}
	tail := " ! nvvidconv ! video/x-raw(memory:NVMM),width=1280,height=720,format=NV12" +
		" ! nvv4l2h265enc bitrate=4000000 preset-level=1 iframeinterval=30 ! h265parse" +
		" ! rtph265pay pt=96 config-interval=1 mtu=1400" +
		" ! udpsink host=127.0.0.1 port=15003 sync=false async=false buffer-size=4194304"

	tests := []struct {
		name   string
		src    streams.SourceSpec
		source string
	}{
		{
			name:   "usb mjpeg auto size",
			src:    streams.SourceSpec{Kind: streams.SourceUSB, Device: "/dev/video1", InputFormat: streams.InputMJPEG},
			source: `v4l2src device="/dev/video1" ! image/jpeg,framerate=30/1 ! nvv4l2decoder mjpeg=1 ! queue max-size-buffers=3 leaky=downstream`,
		},
		{
			name:   "usb yuyv with size",
			src:    streams.SourceSpec{Kind: streams.SourceUSB, Device: "/dev/video0", InputFormat: streams.InputRaw, InputWidth: 640, InputHeight: 480},
			source: `v4l2src device="/dev/video0" ! video/x-raw,format=YUY2,width=640,height=480,framerate=30/1 ! videoconvert`,
		},
		{
			name:   "usb nv12",
			src:    streams.SourceSpec{Kind: streams.SourceUSB, Device: "/dev/video0", InputFormat: streams.InputNV12},
			source: `v4l2src device="/dev/video0" ! video/x-raw,format=NV12,framerate=30/1`,
		},
		{
			name:   "csi flipped",
			src:    streams.SourceSpec{Kind: streams.SourceCSI, Flip: 2},
			source: `nvarguscamerasrc ! video/x-raw(memory:NVMM),width=1920,height=1080,format=NV12,framerate=30/1 ! nvvidconv flip-method=2`,
		},
		{
			name:   "rtsp h265",
			src:    streams.SourceSpec{Kind: streams.SourceRTSP, URL: "rtsp://10.0.0.2:554/live", InputCodec: streams.CodecH265},
			source: `rtspsrc location="rtsp://10.0.0.2:554/live" latency=100 ! rtph265depay ! h265parse ! nvv4l2decoder`,
		},
		{
			name:   "test pattern",
			src:    streams.SourceSpec{Kind: streams.SourceTest},
			source: `videotestsrc is-live=true pattern=ball ! video/x-raw,width=640,height=480,framerate=30/1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildStandalone(tt.src, out, addr)
			if err != nil {
				t.Fatalf("BuildStandalone failed: %v", err)
			}
			if got := Render(g); got != tt.source+tail {
				t.Errorf("Render mismatch\n got: %s\nwant: %s", got, tt.source+tail)
			}
		})
	}
}

func TestBuildStandaloneErrors(t *testing.T) {
	out := streams.StreamSpec{Name: "cam", Width: 1280, Height: 720, Framerate: 30, Bitrate: 4000, Codec: streams.CodecH264}
	addr := streams.Address{Host: streams.InternalHost, Port: 15000}

	if _, err := BuildStandalone(streams.SourceSpec{Kind: streams.SourceRTSP}, out, addr); !streams.IsConfigError(err) {
		t.Errorf("Expected config error for rtsp without url, got %v", err)
	}
	if _, err := BuildStandalone(streams.SourceSpec{Kind: "hdmi"}, out, addr); !streams.IsConfigError(err) {
		t.Errorf("Expected config error for unknown source, got %v", err)
	}
}

func TestPayloadAt(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	avc := testStream("avc", 1280, 720, 2000)
	avc.Codec = streams.CodecH264
	g := buildTestFanout(t, camera, []streams.StreamSpec{testStream("hevc", 1920, 1080, 4000), avc})

	p, err := PayloadAt(g, 15000)
	if err != nil {
		t.Fatalf("PayloadAt failed: %v", err)
	}
	if p != (Payload{Encoding: "H265", PayloadType: 96, ClockRate: 90000}) {
		t.Errorf("Unexpected payload %v", p)
	}
	p, err = PayloadAt(g, 15001)
	if err != nil {
		t.Fatalf("PayloadAt failed: %v", err)
	}
	if p.Encoding != "H264" {
		t.Errorf("Expected H264, got %v", p)
	}
	if _, err := PayloadAt(g, 15009); err == nil {
		t.Error("Expected error for unknown port")
	}
}

func TestValidateRejectsBadGraphs(t *testing.T) {
	g := &Graph{}
	src := g.add(KindSource, "videotestsrc")
	q := g.add(KindQueue, "queue")
	a := g.add(KindSink, "fakesink")
	b := g.add(KindSink, "fakesink")
	g.link(src, q, FormatRaw)
	g.link(q, a, FormatRaw)
	g.link(q, b, FormatRaw)
	if err := g.Validate(); err == nil {
		t.Error("Expected error for fan-out without split")
	}

	g = &Graph{}
	src = g.add(KindSource, "videotestsrc")
	split := g.add(KindSplit, "tee")
	g.link(src, split, FormatRaw)
	g.link(split, g.add(KindSink, "fakesink"), FormatRaw)
	if err := g.Validate(); err == nil {
		t.Error("Expected error for unnamed split")
	}

	g = &Graph{}
	src = g.add(KindSource, "videotestsrc")
	g.link(src, g.add(KindQueue, "queue"), FormatRaw)
	if err := g.Validate(); err == nil {
		t.Error("Expected error for dead end")
	}
}

func TestArgs(t *testing.T) {
	desc := `rtspsrc location="rtsp://cam/a b" latency=100 ! fakesink`
	want := []string{"rtspsrc", `location="rtsp://cam/a b"`, "latency=100", "!", "fakesink"}
	if got := Args(desc); !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func TestBranches(t *testing.T) {
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	g := buildTestFanout(t, camera, []streams.StreamSpec{
		testStream("main", 1920, 1080, 4000),
		testStream("sub", 1280, 720, 2000),
		testStream("copy", 1920, 1080, 4000),
	})

	lines := Branches(g)
	// root chain, two encoder branches, three output branches
	if len(lines) != 6 {
		t.Fatalf("got %d branches, want 6:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.HasPrefix(lines[0], "v4l2src ") || !strings.HasSuffix(lines[0], "tee name=t") {
		t.Errorf("root branch = %q", lines[0])
	}
	var encoders, outputs int
	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "t. ! "):
			encoders++
			if strings.Contains(line, "udpsink") {
				t.Errorf("encoder branch runs into a sink: %q", line)
			}
		case strings.HasPrefix(line, "tee_"):
			outputs++
			if !strings.HasSuffix(line, "buffer-size=4194304") {
				t.Errorf("output branch does not end in its sink: %q", line)
			}
		default:
			t.Errorf("unexpected branch %q", line)
		}
	}
	if encoders != 2 || outputs != 3 {
		t.Errorf("encoders = %d, outputs = %d", encoders, outputs)
	}
	if joined := strings.Join(lines, " "); joined != Render(g) {
		t.Errorf("joined branches differ from Render:\n%s\n%s", joined, Render(g))
	}
	if Branches(&Graph{}) != nil {
		t.Error("empty graph should have no branches")
	}
}
