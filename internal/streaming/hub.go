// Package streaming serves endpoints over RTSP. Each listener port gets a
// gortsplib server, and each endpoint gets a UDP relay that feeds RTP from
// its internal address into the mount's stream without re-encoding.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/metrics"
)

// ErrMountNotFound is returned when a port and mount pair is not served.
var ErrMountNotFound = errors.New("mount not found")

// Hub owns the RTSP servers and relays of one runtime.
type Hub struct {
	servers []*Server
	byPort  map[int]*Server
	relays  []*Relay
	logger  *slog.Logger
}

// NewHub creates a server per listener and a relay per endpoint of reg.
func NewHub(reg *endpoints.Registry, bus *events.Bus, logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		byPort: make(map[int]*Server),
		logger: logger,
	}
	for _, l := range reg.Listeners() {
		srv, err := NewServer(l, bus, logger)
		if err != nil {
			return nil, err
		}
		h.servers = append(h.servers, srv)
		h.byPort[l.Port] = srv

		for _, e := range l.Endpoints {
			sink, params, ok := srv.Sink(e.Mount)
			if !ok {
				return nil, fmt.Errorf("%w: %d%s", ErrMountNotFound, e.Port, e.Mount)
			}
			h.relays = append(h.relays, NewRelay(e, sink, params, logger))
		}
	}
	return h, nil
}

// Start binds every RTSP listener and relay socket. On failure everything
// already bound is released.
func (h *Hub) Start() error {
	for i, srv := range h.servers {
		if err := srv.Start(); err != nil {
			for _, started := range h.servers[:i] {
				started.Close()
			}
			return err
		}
	}
	for i, r := range h.relays {
		if err := r.Listen(); err != nil {
			for _, bound := range h.relays[:i] {
				_ = bound.Close()
			}
			h.closeServers()
			return err
		}
	}
	return nil
}

// Run relays packets until ctx is cancelled, then closes everything.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range h.relays {
		g.Go(func() error {
			return r.Serve(gctx)
		})
	}
	err := g.Wait()
	h.Close()
	return err
}

// Close releases all sockets and listeners.
func (h *Hub) Close() {
	for _, r := range h.relays {
		_ = r.Close()
	}
	h.closeServers()
}

func (h *Hub) closeServers() {
	for _, srv := range h.servers {
		srv.Close()
	}
}

// Clients returns playing sessions on a mount.
func (h *Hub) Clients(port int, mount string) int {
	if srv, ok := h.byPort[port]; ok {
		return srv.Clients(mount)
	}
	return 0
}

// Forget removes relay metrics of all endpoints.
func (h *Hub) Forget() {
	for _, r := range h.relays {
		metrics.DeleteRelayMetrics(r.endpoint.Port, r.endpoint.Mount)
	}
}
