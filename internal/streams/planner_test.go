package streams

import (
	"reflect"
	"testing"
)

func spec(name string, w, h, port int, mount string) StreamSpec {
	return StreamSpec{
		Name:      name,
		Enabled:   true,
		Width:     w,
		Height:    h,
		Framerate: 30,
		Bitrate:   4000,
		Codec:     CodecH265,
		Port:      port,
		Mount:     mount,
	}
}

func TestGroupStreamsFirstSeenOrder(t *testing.T) {
	specs := []StreamSpec{
		spec("a", 1920, 1080, 8554, "/a"),
		spec("b", 1280, 720, 8554, "/b"),
		spec("c", 1920, 1080, 8554, "/c"),
	}

	groups, err := GroupStreams(specs)
	if err != nil {
		t.Fatalf("GroupStreams failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if !reflect.DeepEqual(groups[0].Members, []int{0, 2}) {
		t.Errorf("Expected first group members [0 2], got %v", groups[0].Members)
	}
	if !reflect.DeepEqual(groups[1].Members, []int{1}) {
		t.Errorf("Expected second group members [1], got %v", groups[1].Members)
	}
	if groups[0].Key() != "1920x1080" || groups[1].Key() != "1280x720" {
		t.Errorf("Unexpected group keys %s, %s", groups[0].Key(), groups[1].Key())
	}
}

func TestGroupStreamsRepresentativeIsFirstMember(t *testing.T) {
	first := spec("first", 1280, 720, 8554, "/1")
	first.Bitrate = 2000
	first.Framerate = 15
	second := spec("second", 1280, 720, 8554, "/2")
	second.Bitrate = 6000
	second.Codec = CodecH264

	groups, err := GroupStreams([]StreamSpec{first, second})
	if err != nil {
		t.Fatalf("GroupStreams failed: %v", err)
	}
	g := groups[0]
	if g.Bitrate != 2000 || g.Framerate != 15 || g.Codec != CodecH265 {
		t.Errorf("Group did not take first member params: %+v", g)
	}
	if !reflect.DeepEqual(g.Mismatched, []int{1}) {
		t.Errorf("Expected member 1 flagged as mismatched, got %v", g.Mismatched)
	}
}

func TestGroupStreamsEmpty(t *testing.T) {
	_, err := GroupStreams(nil)
	if err == nil {
		t.Fatal("Expected error for empty stream list")
	}
	if !IsConfigError(err) {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestAssignAddressesInjective(t *testing.T) {
	for _, n := range []int{1, 2, 7, 32} {
		specs := make([]StreamSpec, n)
		addrs := AssignAddresses(specs, DefaultBasePort)
		if len(addrs) != n {
			t.Fatalf("Expected %d addresses, got %d", n, len(addrs))
		}
		seen := make(map[string]bool)
		for i, a := range addrs {
			if a.Port != DefaultBasePort+i {
				t.Errorf("Address %d: expected port %d, got %d", i, DefaultBasePort+i, a.Port)
			}
			if seen[a.String()] {
				t.Errorf("Duplicate address %s", a)
			}
			seen[a.String()] = true
		}
	}
}

func TestNewPlan(t *testing.T) {
	camera := CameraConfig{Device: "/dev/video0", InputFormat: InputMJPEG, Framerate: 30}

	tests := []struct {
		name    string
		specs   []StreamSpec
		wantErr bool
	}{
		{
			name: "valid shared port",
			specs: []StreamSpec{
				spec("hd", 1920, 1080, 8554, "/hd"),
				spec("sd", 640, 480, 8554, "/sd"),
			},
		},
		{
			name: "duplicate port and mount",
			specs: []StreamSpec{
				spec("a", 1920, 1080, 8554, "/same"),
				spec("b", 640, 480, 8554, "/same"),
			},
			wantErr: true,
		},
		{
			name: "same mount on different ports",
			specs: []StreamSpec{
				spec("a", 1920, 1080, 8554, "/same"),
				spec("b", 640, 480, 8555, "/same"),
			},
		},
		{
			name: "rtsp port collides with internal address",
			specs: []StreamSpec{
				spec("a", 1920, 1080, 8554, "/a"),
				spec("b", 640, 480, 15000, "/b"),
			},
			wantErr: true,
		},
		{
			name: "duplicate only among disabled streams",
			specs: []StreamSpec{
				spec("a", 1920, 1080, 8554, "/same"),
				func() StreamSpec { s := spec("b", 640, 480, 8554, "/same"); s.Enabled = false; return s }(),
			},
		},
		{
			name: "mount without slash",
			specs: []StreamSpec{
				spec("a", 1920, 1080, 8554, "a"),
			},
			wantErr: true,
		},
		{
			name: "all disabled",
			specs: []StreamSpec{
				func() StreamSpec { s := spec("a", 1920, 1080, 8554, "/a"); s.Enabled = false; return s }(),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan(camera, tt.specs, DefaultBasePort)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !IsConfigError(err) {
					t.Errorf("Expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPlan failed: %v", err)
			}
			if len(plan.Addresses) != len(plan.Streams) {
				t.Errorf("Expected one address per enabled stream")
			}
		})
	}
}

func TestPlanGroupOf(t *testing.T) {
	camera := CameraConfig{Device: "/dev/video0", InputFormat: InputMJPEG, Framerate: 30}
	plan, err := NewPlan(camera, []StreamSpec{
		spec("a", 1920, 1080, 8554, "/a"),
		spec("b", 1280, 720, 8554, "/b"),
		spec("c", 1920, 1080, 8554, "/c"),
	}, 0)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	want := []int{0, 1, 0}
	for i, g := range want {
		if got := plan.GroupOf(i); got != g {
			t.Errorf("GroupOf(%d) = %d, want %d", i, got, g)
		}
	}
	if plan.GroupOf(9) != -1 {
		t.Error("Expected -1 for unknown stream")
	}
}

func TestParseInputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    InputFormat
		wantErr bool
	}{
		{"mjpeg", InputMJPEG, false},
		{"MJPG", InputMJPEG, false},
		{"h264", InputH264, false},
		{"nv12", InputNV12, false},
		{"yuyv", InputRaw, false},
		{"raw", InputRaw, false},
		{"bayer", "", true},
	}
	for _, tt := range tests {
		got, err := ParseInputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStreamErrorChain(t *testing.T) {
	inner := ConfigError("bad field")
	outer := NewStreamError(ErrCodeGraphBuild, "build failed", inner)

	if !IsConfigError(outer) {
		t.Error("Expected config error to be found in chain")
	}
	if !IsGraphError(outer) {
		t.Error("Expected graph error")
	}
	if IsGraphError(inner) {
		t.Error("Inner error should not be a graph error")
	}
	if outer.Error() != "GRAPH_BUILD_ERROR: build failed: CONFIG_ERROR: bad field" {
		t.Errorf("Unexpected message: %s", outer.Error())
	}
}
