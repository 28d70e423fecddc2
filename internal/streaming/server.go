package streaming

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"

	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/metrics"
)

// mount is one served path of a Server.
type mount struct {
	endpoint *endpoints.Endpoint
	format   format.Format
	media    *description.Media
	params   *paramTracker
	stream   *gortsplib.ServerStream
	clients  int
}

// Server serves the mounts of one RTSP listener port. Only TCP-interleaved
// transport is offered.
type Server struct {
	listener *endpoints.Listener
	bus      *events.Bus
	logger   *slog.Logger
	server   *gortsplib.Server

	mu       sync.Mutex
	mounts   map[string]*mount
	sessions map[*gortsplib.ServerSession]*mount
	closed   bool
}

// NewServer prepares a server for l. It does not listen yet.
func NewServer(l *endpoints.Listener, bus *events.Bus, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listener: l,
		bus:      bus,
		logger:   logger.With("port", l.Port),
		mounts:   make(map[string]*mount),
		sessions: make(map[*gortsplib.ServerSession]*mount),
	}
	for _, e := range l.Endpoints {
		forma, err := FormatFor(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", e.Mount, err)
		}
		s.mounts[e.Mount] = &mount{
			endpoint: e,
			format:   forma,
			media:    mediaFor(forma),
			params:   newParamTracker(forma),
		}
	}
	return s, nil
}

// Port returns the listener port.
func (s *Server) Port() int {
	return s.listener.Port
}

// Start binds the RTSP port and creates one stream per mount.
func (s *Server) Start() error {
	s.server = &gortsplib.Server{
		Handler:     s,
		RTSPAddress: fmt.Sprintf(":%d", s.listener.Port),
	}
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("rtsp listener :%d: %w", s.listener.Port, err)
	}

	s.mu.Lock()
	for _, m := range s.mounts {
		m.stream = gortsplib.NewServerStream(s.server, &description.Session{
			Medias: []*description.Media{m.media},
		})
	}
	s.mu.Unlock()

	s.logger.Info("RTSP listener started", "mounts", len(s.mounts))
	return nil
}

// Close stops the listener and all its streams.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed || s.server == nil {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, m := range s.mounts {
		if m.stream != nil {
			m.stream.Close()
			m.stream = nil
		}
	}
	s.mu.Unlock()

	s.server.Close()
	for _, e := range s.listener.Endpoints {
		metrics.SetClients(e.Port, e.Mount, 0)
	}
	s.logger.Info("RTSP listener stopped")
}

// Sink returns the packet sink and parameter tracker for a mount.
func (s *Server) Sink(mountPath string) (PacketSink, *paramTracker, bool) {
	s.mu.Lock()
	m, ok := s.mounts[endpoints.NormalizeMount(mountPath)]
	s.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	return func(pkt *rtp.Packet) { s.write(m, pkt) }, m.params, true
}

func (s *Server) write(m *mount, pkt *rtp.Packet) {
	s.mu.Lock()
	stream := m.stream
	s.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.WritePacketRTP(m.media, pkt); err != nil {
		s.logger.Debug("Failed to write packet", "mount", m.endpoint.Mount, "error", err)
	}
}

// Clients returns the number of playing sessions on a mount.
func (s *Server) Clients(mountPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mounts[endpoints.NormalizeMount(mountPath)]; ok {
		return m.clients
	}
	return 0
}

func (s *Server) lookup(path string) (*mount, *gortsplib.ServerStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mounts[endpoints.NormalizeMount(path)]
	if !ok {
		return nil, nil
	}
	return m, m.stream
}

// OnConnOpen implements gortsplib.ServerHandlerOnConnOpen.
func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	s.logger.Debug("RTSP connection opened", "remote", ctx.Conn.NetConn().RemoteAddr())
}

// OnConnClose implements gortsplib.ServerHandlerOnConnClose.
func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	s.logger.Debug("RTSP connection closed", "remote", ctx.Conn.NetConn().RemoteAddr(), "error", ctx.Error)
}

// OnDescribe implements gortsplib.ServerHandlerOnDescribe.
func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	m, stream := s.lookup(ctx.Path)
	if m == nil || stream == nil {
		s.logger.Debug("DESCRIBE for unknown mount", "path", ctx.Path)
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	return &base.Response{StatusCode: base.StatusOK}, stream, nil
}

// OnSetup implements gortsplib.ServerHandlerOnSetup.
func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	m, stream := s.lookup(ctx.Path)
	if m == nil || stream == nil {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	return &base.Response{StatusCode: base.StatusOK}, stream, nil
}

// OnPlay implements gortsplib.ServerHandlerOnPlay. The first PLAY of a
// session counts as a client connect.
func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	s.mu.Lock()
	m, ok := s.mounts[endpoints.NormalizeMount(ctx.Path)]
	if !ok {
		s.mu.Unlock()
		return &base.Response{StatusCode: base.StatusNotFound}, nil
	}
	_, seen := s.sessions[ctx.Session]
	if !seen {
		s.sessions[ctx.Session] = m
		m.clients++
	}
	clients := m.clients
	s.mu.Unlock()

	if !seen {
		remote := ctx.Conn.NetConn().RemoteAddr().String()
		s.logger.Info("Client started playback", "mount", m.endpoint.Mount, "remote", remote, "clients", clients)
		metrics.SetClients(m.endpoint.Port, m.endpoint.Mount, clients)
		s.publish(events.ClientConnected, m.endpoint, remote)
	}
	return &base.Response{StatusCode: base.StatusOK}, nil
}

// OnSessionClose implements gortsplib.ServerHandlerOnSessionClose.
func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.mu.Lock()
	m, ok := s.sessions[ctx.Session]
	if ok {
		delete(s.sessions, ctx.Session)
		if m.clients > 0 {
			m.clients--
		}
	}
	var clients int
	if ok {
		clients = m.clients
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.logger.Info("Client ended playback", "mount", m.endpoint.Mount, "clients", clients, "error", ctx.Error)
	metrics.SetClients(m.endpoint.Port, m.endpoint.Mount, clients)
	s.publish(events.ClientDisconnected, m.endpoint, "")
}

func (s *Server) publish(action events.ClientAction, e *endpoints.Endpoint, remote string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ClientEvent{
		Action:    action,
		Port:      e.Port,
		Mount:     e.Mount,
		Remote:    remote,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
