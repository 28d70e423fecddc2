package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/metrics"
)

const (
	// maxDatagram covers any UDP payload the engine can emit.
	maxDatagram = 65536

	// readBuffer matches the engine's udpsink buffer-size.
	readBuffer = 4 * 1024 * 1024
)

// PacketSink receives relayed packets. It must not retain pkt.
type PacketSink func(pkt *rtp.Packet)

// Relay reads RTP datagrams from an endpoint's internal address and hands
// them to a sink after checking the payload type.
type Relay struct {
	endpoint *endpoints.Endpoint
	sink     PacketSink
	params   *paramTracker
	logger   *slog.Logger
	warn     *rate.Limiter

	mu   sync.Mutex
	conn net.PacketConn
}

// NewRelay creates a relay for e. params may be nil.
func NewRelay(e *endpoints.Endpoint, sink PacketSink, params *paramTracker, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		endpoint: e,
		sink:     sink,
		params:   params,
		logger:   logger.With("mount", e.Mount, "port", e.Port),
		// one drop warning per 5s at most
		warn: rate.NewLimiter(rate.Limit(0.2), 1),
	}
}

// Listen binds the internal address. It must be called before the engine
// starts sending.
func (r *Relay) Listen() error {
	conn, err := net.ListenPacket("udp", r.endpoint.Source.String())
	if err != nil {
		return fmt.Errorf("relay %s: %w", r.endpoint.Source, err)
	}
	if udp, ok := conn.(*net.UDPConn); ok {
		if err := udp.SetReadBuffer(readBuffer); err != nil {
			r.logger.Debug("Failed to raise UDP read buffer", "error", err)
		}
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.logger.Debug("Relay listening", "addr", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (r *Relay) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Serve relays datagrams until ctx is cancelled or the socket fails.
func (r *Relay) Serve(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("relay not listening")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("relay %s: %w", r.endpoint.Source, err)
		}
		r.handle(buf[:n])
	}
}

// Close releases the socket.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (r *Relay) handle(data []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		r.drop("malformed RTP datagram", "error", err, "size", len(data))
		return
	}
	if pkt.PayloadType != r.endpoint.Payload.PayloadType {
		r.drop("unexpected payload type", "got", pkt.PayloadType, "want", r.endpoint.Payload.PayloadType)
		return
	}

	metrics.AddRelayPacket(r.endpoint.Port, r.endpoint.Mount, len(data))
	if r.params != nil {
		r.params.observe(pkt.Payload)
	}
	r.sink(&pkt)
}

func (r *Relay) drop(msg string, args ...any) {
	metrics.AddRelayDrop(r.endpoint.Port, r.endpoint.Mount)
	if r.warn.Allow() {
		r.logger.Warn("Relay dropped datagram: "+msg, args...)
	}
}
