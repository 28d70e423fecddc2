package endpoints

import (
	"testing"

	"github.com/AlexxIT/go2rtc/pkg/core"

	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/streams"
)

func stream(name string, w, h, port int, mount string, codec streams.Codec) streams.StreamSpec {
	return streams.StreamSpec{
		Name: name, Enabled: true, Width: w, Height: h, Framerate: 30,
		Bitrate: 2000, Codec: codec, Port: port, Mount: mount,
	}
}

func testPlan(t *testing.T, specs ...streams.StreamSpec) *streams.Plan {
	t.Helper()
	camera := streams.CameraConfig{Device: "/dev/video0", InputFormat: streams.InputMJPEG, Width: 1920, Height: 1080, Framerate: 30}
	plan, err := streams.NewPlan(camera, specs, streams.DefaultBasePort)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	return plan
}

func TestFromPlanSharesListeners(t *testing.T) {
	plan := testPlan(t,
		stream("a", 1920, 1080, 8554, "/a", streams.CodecH265),
		stream("b", 1280, 720, 8555, "/b", streams.CodecH265),
		stream("c", 640, 360, 8554, "/c", streams.CodecH265),
	)
	r, err := FromPlan(plan)
	if err != nil {
		t.Fatalf("FromPlan failed: %v", err)
	}

	listeners := r.Listeners()
	if len(listeners) != 2 {
		t.Fatalf("Expected 2 listeners, got %d", len(listeners))
	}
	if listeners[0].Port != 8554 || len(listeners[0].Endpoints) != 2 {
		t.Errorf("Expected port 8554 with 2 mounts, got %d with %d", listeners[0].Port, len(listeners[0].Endpoints))
	}
	if listeners[1].Port != 8555 || len(listeners[1].Endpoints) != 1 {
		t.Errorf("Expected port 8555 with 1 mount, got %d with %d", listeners[1].Port, len(listeners[1].Endpoints))
	}

	e, ok := r.Find(8554, "c")
	if !ok {
		t.Fatal("Expected to find /c without leading slash")
	}
	if e.Source.Port != 15002 {
		t.Errorf("Expected /c relayed from 15002, got %d", e.Source.Port)
	}
	if e.URL("192.168.1.5") != "rtsp://192.168.1.5:8554/c" {
		t.Errorf("Unexpected URL %s", e.URL("192.168.1.5"))
	}
	if _, ok := r.Find(8555, "/a"); ok {
		t.Error("/a must not be served on 8555")
	}
}

func TestPayloadFollowsGroupCodec(t *testing.T) {
	plan := testPlan(t,
		stream("hevc", 1280, 720, 8554, "/hevc", streams.CodecH265),
		stream("avc", 1280, 720, 8554, "/avc", streams.CodecH264),
	)
	r, err := FromPlan(plan)
	if err != nil {
		t.Fatalf("FromPlan failed: %v", err)
	}
	for _, e := range r.Endpoints() {
		if e.Payload.Name != core.CodecH265 {
			t.Errorf("%s: expected group codec H265, got %s", e.Name, e.Payload.Name)
		}
		if e.Payload.PayloadType != 96 || e.Payload.ClockRate != 90000 {
			t.Errorf("%s: unexpected payload %+v", e.Name, e.Payload)
		}
	}
}

func TestRegisterErrors(t *testing.T) {
	r := NewRegistry()
	addr := func(p int) streams.Address { return streams.Address{Host: streams.InternalHost, Port: p} }

	if _, err := r.Register(0, stream("a", 640, 480, 8554, "/a", streams.CodecH264), addr(15000), streams.CodecH264, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name string
		spec streams.StreamSpec
		addr streams.Address
	}{
		{"duplicate mount", stream("b", 640, 480, 8554, "/a", streams.CodecH264), addr(15001)},
		{"duplicate mount with trailing slash", stream("b", 640, 480, 8554, "/a/", streams.CodecH264), addr(15001)},
		{"mount without slash", stream("b", 640, 480, 8554, "b", streams.CodecH264), addr(15001)},
		{"rtsp port on internal address", stream("b", 640, 480, 15000, "/b", streams.CodecH264), addr(15001)},
		{"internal address on rtsp port", stream("b", 640, 480, 8555, "/b", streams.CodecH264), addr(8554)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(1, tt.spec, tt.addr, streams.CodecH264, 0)
			if !streams.IsConfigError(err) {
				t.Errorf("Expected config error, got %v", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	plan := testPlan(t,
		stream("a", 1920, 1080, 8554, "/a", streams.CodecH265),
		stream("b", 1280, 720, 8554, "/b", streams.CodecH264),
	)
	r, err := FromPlan(plan)
	if err != nil {
		t.Fatalf("FromPlan failed: %v", err)
	}
	g, err := pipeline.BuildFanout(plan.Camera, plan.Groups, plan.Addresses)
	if err != nil {
		t.Fatalf("BuildFanout failed: %v", err)
	}
	if err := r.Verify(g); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// a graph whose packetizer disagrees with the mount must be rejected
	avc := r.Endpoints()[1]
	avc.Payload = PayloadFor(streams.CodecH265)
	err = r.Verify(g)
	if err == nil {
		t.Fatal("Expected payload mismatch")
	}
	if !streams.HasCode(err, streams.ErrCodeGraphBuild) {
		t.Errorf("Expected graph build error, got %v", err)
	}

	// a missing sink is also a build error
	avc.Payload = PayloadFor(streams.CodecH264)
	avc.Source.Port = 16000
	if err := r.Verify(g); !streams.HasCode(err, streams.ErrCodeGraphBuild) {
		t.Errorf("Expected graph build error for missing sink, got %v", err)
	}
}

func TestRelayDescription(t *testing.T) {
	r := NewRegistry()
	e, err := r.Register(0, stream("a", 640, 480, 8554, "/a", streams.CodecH264),
		streams.Address{Host: streams.InternalHost, Port: 15000}, streams.CodecH264, 0)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	want := "udp://127.0.0.1:15000 -> rtsp :8554/a (H264/90000 pt=96)"
	if got := e.Relay(); got != want {
		t.Errorf("Relay() = %q, want %q", got, want)
	}
}
