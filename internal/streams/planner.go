package streams

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultBasePort is the first internal relay port.
const DefaultBasePort = 15000

// InternalHost is the loopback host the internal RTP transport binds to.
const InternalHost = "127.0.0.1"

// Group is a set of streams sharing one encoder. Bitrate, Framerate and
// Codec are taken from the first member.
type Group struct {
	Width     int
	Height    int
	Bitrate   int
	Framerate int
	Codec     Codec

	// Members are indices into the enabled stream list, in config order.
	Members []int
	// Mismatched lists members whose bitrate, framerate or codec differ
	// from the first member and are overridden by it.
	Mismatched []int
}

// Key returns the group's WxH key.
func (g Group) Key() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Address is a loopback UDP endpoint between the graph and the RTSP side.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// GroupStreams groups enabled streams by output size in first-seen order.
func GroupStreams(enabled []StreamSpec) ([]Group, error) {
	if len(enabled) == 0 {
		return nil, ConfigError("no enabled output streams")
	}

	type key struct{ w, h int }
	index := make(map[key]int)
	var groups []Group

	for i, s := range enabled {
		k := key{s.Width, s.Height}
		gi, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, Group{
				Width:     s.Width,
				Height:    s.Height,
				Bitrate:   s.Bitrate,
				Framerate: s.Framerate,
				Codec:     s.Codec,
				Members:   []int{i},
			})
			continue
		}
		g := &groups[gi]
		g.Members = append(g.Members, i)
		if s.Bitrate != g.Bitrate || s.Framerate != g.Framerate || s.Codec != g.Codec {
			g.Mismatched = append(g.Mismatched, i)
		}
	}
	return groups, nil
}

// AssignAddresses gives the i-th enabled stream base+i on the loopback host.
func AssignAddresses(enabled []StreamSpec, base int) []Address {
	addrs := make([]Address, len(enabled))
	for i := range enabled {
		addrs[i] = Address{Host: InternalHost, Port: base + i}
	}
	return addrs
}

// CheckEndpoints verifies that (port, mount) pairs are unique and that no
// internal address lands on an RTSP port.
func CheckEndpoints(enabled []StreamSpec, addrs []Address) error {
	type key struct {
		port  int
		mount string
	}
	seen := make(map[key]string, len(enabled))
	rtspPorts := make(map[int]bool)
	for _, s := range enabled {
		k := key{s.Port, s.Mount}
		if other, dup := seen[k]; dup {
			return ConfigError("streams %q and %q both use port %d mount %s", other, s.Name, s.Port, s.Mount)
		}
		seen[k] = s.Name
		rtspPorts[s.Port] = true
	}
	for i, a := range addrs {
		if rtspPorts[a.Port] {
			return ConfigError("internal address %s of stream %q collides with an RTSP port", a, enabled[i].Name)
		}
	}
	return nil
}

// Plan is the derived, immutable layout of a fan-out runtime.
type Plan struct {
	Camera    CameraConfig
	Streams   []StreamSpec
	Groups    []Group
	Addresses []Address
}

// NewPlan validates the enabled streams and derives groups and addresses.
func NewPlan(camera CameraConfig, specs []StreamSpec, base int) (*Plan, error) {
	if base <= 0 {
		base = DefaultBasePort
	}
	enabled := Enabled(specs)
	for _, s := range enabled {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	groups, err := GroupStreams(enabled)
	if err != nil {
		return nil, err
	}
	addrs := AssignAddresses(enabled, base)
	if last := addrs[len(addrs)-1].Port; last > 65535 {
		return nil, ConfigError("internal port %d out of range", last)
	}
	if err := CheckEndpoints(enabled, addrs); err != nil {
		return nil, err
	}
	return &Plan{
		Camera:    camera,
		Streams:   enabled,
		Groups:    groups,
		Addresses: addrs,
	}, nil
}

// GroupOf returns the index of the group containing stream i, or -1.
func (p *Plan) GroupOf(i int) int {
	for gi, g := range p.Groups {
		for _, m := range g.Members {
			if m == i {
				return gi
			}
		}
	}
	return -1
}
