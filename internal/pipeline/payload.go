package pipeline

import (
	"fmt"
	"strconv"
)

// VideoClockRate is the RTP clock of every video packetizer.
const VideoClockRate = 90000

// Payload describes the RTP stream a packetizer produces.
type Payload struct {
	Encoding    string // H264 or H265
	PayloadType uint8
	ClockRate   uint32
}

func (p Payload) String() string {
	return fmt.Sprintf("%s/%d pt=%d", p.Encoding, p.ClockRate, p.PayloadType)
}

var packetizerEncodings = map[string]string{
	"rtph264pay": "H264",
	"rtph265pay": "H265",
}

// SinkForPort finds the udpsink writing to port.
func SinkForPort(g *Graph, port int) (*Node, bool) {
	want := strconv.Itoa(port)
	for _, n := range g.Nodes {
		if n.Kind != KindSink {
			continue
		}
		if p, ok := n.Prop("port"); ok && p == want {
			return n, true
		}
	}
	return nil, false
}

// PayloadAt walks back from the sink at port to its packetizer and reports
// the payload written there.
func PayloadAt(g *Graph, port int) (Payload, error) {
	sink, ok := SinkForPort(g, port)
	if !ok {
		return Payload{}, fmt.Errorf("no sink for port %d", port)
	}
	id := sink.ID
	for {
		e, ok := g.Parent(id)
		if !ok {
			return Payload{}, fmt.Errorf("sink for port %d has no packetizer", port)
		}
		n := g.Nodes[e.From]
		if n.Kind == KindPacketize {
			enc, known := packetizerEncodings[n.Element]
			if !known {
				return Payload{}, fmt.Errorf("unknown packetizer %s", n.Element)
			}
			ptText, _ := n.Prop("pt")
			pt, err := strconv.ParseUint(ptText, 10, 8)
			if err != nil {
				return Payload{}, fmt.Errorf("packetizer %s: bad pt %q", n.Element, ptText)
			}
			return Payload{Encoding: enc, PayloadType: uint8(pt), ClockRate: VideoClockRate}, nil
		}
		id = n.ID
	}
}
