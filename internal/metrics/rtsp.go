package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rtspClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rtsp",
		Name:      "clients",
		Help:      "Playing RTSP clients per mount",
	}, []string{"port", "mount"})

	relayPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "packets_total",
		Help:      "RTP packets relayed from the engine",
	}, []string{"port", "mount"})

	relayBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "bytes_total",
		Help:      "RTP bytes relayed from the engine",
	}, []string{"port", "mount"})

	relayDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "dropped_total",
		Help:      "Datagrams dropped by the relay",
	}, []string{"port", "mount"})

	// Local cache for the status API.
	relayCache   = make(map[string]*RelayStats)
	relayCacheMu sync.RWMutex
)

// RelayStats holds current relay values for one endpoint.
type RelayStats struct {
	Clients int
	Packets uint64
	Bytes   uint64
	Dropped uint64
}

func endpointKey(port int, mount string) string {
	return strconv.Itoa(port) + mount
}

// SetClients sets the number of playing clients on an endpoint.
func SetClients(port int, mount string, n int) {
	rtspClients.WithLabelValues(strconv.Itoa(port), mount).Set(float64(n))
	updateRelay(port, mount, func(s *RelayStats) { s.Clients = n })
}

// AddRelayPacket counts one relayed packet of size bytes.
func AddRelayPacket(port int, mount string, size int) {
	p := strconv.Itoa(port)
	relayPackets.WithLabelValues(p, mount).Inc()
	relayBytes.WithLabelValues(p, mount).Add(float64(size))
	updateRelay(port, mount, func(s *RelayStats) {
		s.Packets++
		s.Bytes += uint64(size)
	})
}

// AddRelayDrop counts one dropped datagram.
func AddRelayDrop(port int, mount string) {
	relayDrops.WithLabelValues(strconv.Itoa(port), mount).Inc()
	updateRelay(port, mount, func(s *RelayStats) { s.Dropped++ })
}

// GetRelayStats returns current values for an endpoint, or nil.
func GetRelayStats(port int, mount string) *RelayStats {
	relayCacheMu.RLock()
	defer relayCacheMu.RUnlock()
	if s, ok := relayCache[endpointKey(port, mount)]; ok {
		dup := *s
		return &dup
	}
	return nil
}

// DeleteRelayMetrics removes all metrics for an endpoint.
func DeleteRelayMetrics(port int, mount string) {
	p := strconv.Itoa(port)
	rtspClients.DeleteLabelValues(p, mount)
	relayPackets.DeleteLabelValues(p, mount)
	relayBytes.DeleteLabelValues(p, mount)
	relayDrops.DeleteLabelValues(p, mount)

	relayCacheMu.Lock()
	delete(relayCache, endpointKey(port, mount))
	relayCacheMu.Unlock()
}

func updateRelay(port int, mount string, update func(*RelayStats)) {
	relayCacheMu.Lock()
	defer relayCacheMu.Unlock()
	key := endpointKey(port, mount)
	s, ok := relayCache[key]
	if !ok {
		s = &RelayStats{}
		relayCache[key] = s
	}
	update(s)
}
