// Package endpoints maps output streams to RTSP listeners and mounts and
// to the internal address each mount relays from.
package endpoints

import (
	"fmt"
	"strings"

	"github.com/AlexxIT/go2rtc/pkg/core"

	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/streams"
)

// Endpoint is one RTSP mount fed from an internal UDP address.
type Endpoint struct {
	Index   int
	Name    string
	Port    int
	Mount   string
	Group   int
	Source  streams.Address
	Payload core.Codec
}

// URL returns the client URL of e on host.
func (e *Endpoint) URL(host string) string {
	return fmt.Sprintf("rtsp://%s:%d%s", host, e.Port, e.Mount)
}

// Relay describes the protocol bridge between the internal address and the
// mount. No re-encoding happens on this path.
func (e *Endpoint) Relay() string {
	return fmt.Sprintf("udp://%s -> rtsp :%d%s (%s/%d pt=%d)",
		e.Source, e.Port, e.Mount, strings.ToUpper(e.Payload.Name), e.Payload.ClockRate, e.Payload.PayloadType)
}

// Listener groups the endpoints served on one RTSP port.
type Listener struct {
	Port      int
	Endpoints []*Endpoint
}

// Lookup finds the endpoint for path on this listener. Paths are compared
// with a single leading slash.
func (l *Listener) Lookup(path string) (*Endpoint, bool) {
	p := NormalizeMount(path)
	for _, e := range l.Endpoints {
		if e.Mount == p {
			return e, true
		}
	}
	return nil, false
}

// NormalizeMount returns path with exactly one leading slash and no
// trailing slash.
func NormalizeMount(path string) string {
	return "/" + strings.Trim(path, "/")
}

// Registry holds every endpoint of a runtime.
type Registry struct {
	listeners []*Listener
	endpoints []*Endpoint
	byPort    map[int]*Listener
	internal  map[int]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPort:   make(map[int]*Listener),
		internal: make(map[int]string),
	}
}

// FromPlan registers one endpoint per enabled stream of plan. Payloads
// follow the codec of the stream's group, which is what its encoder emits.
func FromPlan(plan *streams.Plan) (*Registry, error) {
	r := NewRegistry()
	for i, s := range plan.Streams {
		gi := plan.GroupOf(i)
		if gi < 0 {
			return nil, streams.ConfigError("stream %q is not in any group", s.Name)
		}
		if _, err := r.Register(i, s, plan.Addresses[i], plan.Groups[gi].Codec, gi); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an endpoint for spec relayed from addr.
func (r *Registry) Register(index int, spec streams.StreamSpec, addr streams.Address, codec streams.Codec, group int) (*Endpoint, error) {
	if !strings.HasPrefix(spec.Mount, "/") {
		return nil, streams.ConfigError("stream %q: mount %q must start with /", spec.Name, spec.Mount)
	}
	if owner, taken := r.internal[spec.Port]; taken {
		return nil, streams.ConfigError("rtsp port %d of stream %q collides with internal address of %q", spec.Port, spec.Name, owner)
	}
	if _, isRTSP := r.byPort[addr.Port]; isRTSP {
		return nil, streams.ConfigError("internal address %s of stream %q collides with an RTSP port", addr, spec.Name)
	}

	l, ok := r.byPort[spec.Port]
	if !ok {
		l = &Listener{Port: spec.Port}
		r.byPort[spec.Port] = l
		r.listeners = append(r.listeners, l)
	}
	mount := NormalizeMount(spec.Mount)
	if existing, dup := l.Lookup(mount); dup {
		return nil, streams.ConfigError("streams %q and %q both use port %d mount %s", existing.Name, spec.Name, spec.Port, mount)
	}

	e := &Endpoint{
		Index:   index,
		Name:    spec.Name,
		Port:    spec.Port,
		Mount:   mount,
		Group:   group,
		Source:  addr,
		Payload: PayloadFor(codec),
	}
	l.Endpoints = append(l.Endpoints, e)
	r.endpoints = append(r.endpoints, e)
	r.internal[addr.Port] = spec.Name
	return e, nil
}

// PayloadFor returns the RTP payload every packetizer for codec produces.
func PayloadFor(codec streams.Codec) core.Codec {
	name := core.CodecH265
	if codec == streams.CodecH264 {
		name = core.CodecH264
	}
	return core.Codec{
		Name:        name,
		ClockRate:   pipeline.VideoClockRate,
		PayloadType: 96,
	}
}

// Listeners returns listeners in first-registered order.
func (r *Registry) Listeners() []*Listener {
	return r.listeners
}

// Endpoints returns every endpoint in registration order.
func (r *Registry) Endpoints() []*Endpoint {
	return r.endpoints
}

// Find returns the endpoint at (port, mount).
func (r *Registry) Find(port int, mount string) (*Endpoint, bool) {
	l, ok := r.byPort[port]
	if !ok {
		return nil, false
	}
	return l.Lookup(mount)
}

// Verify asserts that the packetizer feeding each endpoint's internal
// address produces exactly the payload the endpoint announces.
func (r *Registry) Verify(g *pipeline.Graph) error {
	for _, e := range r.endpoints {
		if err := VerifyEndpoint(g, e); err != nil {
			return err
		}
	}
	return nil
}

// VerifyEndpoint checks a single endpoint against g.
func VerifyEndpoint(g *pipeline.Graph, e *Endpoint) error {
	got, err := pipeline.PayloadAt(g, e.Source.Port)
	if err != nil {
		return streams.NewStreamError(streams.ErrCodeGraphBuild,
			fmt.Sprintf("stream %q", e.Name), err)
	}
	if !strings.EqualFold(got.Encoding, e.Payload.Name) ||
		got.PayloadType != e.Payload.PayloadType ||
		got.ClockRate != e.Payload.ClockRate {
		return streams.NewStreamError(streams.ErrCodeGraphBuild,
			fmt.Sprintf("stream %q: graph emits %s but mount announces %s/%d pt=%d",
				e.Name, got, e.Payload.Name, e.Payload.ClockRate, e.Payload.PayloadType), nil)
	}
	return nil
}
