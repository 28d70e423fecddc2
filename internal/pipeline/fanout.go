package pipeline

import (
	"fmt"
	"strconv"

	"github.com/smazurov/teecast/internal/streams"
)

// Capture defaults when the camera size was neither configured nor probed.
const (
	DefaultInputWidth  = 1920
	DefaultInputHeight = 1080
	DefaultFramerate   = 30
)

const (
	queueBuffers  = "10"
	sinkBuffer    = "4194304"
	rtpMTU        = "1400"
	payloadType   = "96"
	fanoutIFrames = "10"
)

func boundedQueue(g *Graph, leaky bool) *Node {
	props := []Prop{
		{"max-size-buffers", queueBuffers},
		{"max-size-time", "0"},
		{"max-size-bytes", "0"},
	}
	if leaky {
		props = append(props, Prop{"leaky", "downstream"})
	}
	return g.add(KindQueue, "queue", props...)
}

func codecFormat(c streams.Codec) Format {
	if c == streams.CodecH264 {
		return FormatH264
	}
	return FormatH265
}

// codecTag is "264" or "265" for element names.
func codecTag(c streams.Codec) string {
	if c == streams.CodecH264 {
		return "264"
	}
	return "265"
}

func quoted(s string) string {
	return strconv.Quote(s)
}

// chain appends nodes to a linear branch. The format passed with a node
// labels the edge leaving it.
type chain struct {
	g    *Graph
	tail *Node
	fmt  Format
}

func (c *chain) then(n *Node, out Format) *chain {
	if c.tail != nil {
		c.g.link(c.tail, n, c.fmt)
	}
	c.tail = n
	c.fmt = out
	return c
}

// BuildFanout builds the shared-decoder graph: one capture and decode stage
// split to one encoder per group, each split again to one RTP sink per
// member stream.
func BuildFanout(camera streams.CameraConfig, groups []streams.Group, addrs []streams.Address) (*Graph, error) {
	if len(groups) == 0 {
		return nil, streams.ConfigError("no enabled output streams")
	}

	width, height := camera.Width, camera.Height
	if width <= 0 || height <= 0 {
		width, height = DefaultInputWidth, DefaultInputHeight
	}
	fps := camera.Framerate
	if fps <= 0 {
		fps = DefaultFramerate
	}
	size := fmt.Sprintf("width=%d,height=%d,framerate=%d/1", width, height, fps)

	g := &Graph{}
	c := &chain{g: g}
	device := camera.Device
	if device == "" {
		device = "/dev/video0"
	}
	src := g.add(KindSource, "v4l2src", Prop{"device", quoted(device)})

	switch camera.InputFormat {
	case streams.InputMJPEG:
		c.then(src, FormatJPEG).
			then(g.caps("image/jpeg,"+size), FormatJPEG).
			then(g.add(KindDecode, "nvv4l2decoder", Prop{"mjpeg", "1"}), FormatNVMM)
	case streams.InputH264:
		c.then(src, FormatH264).
			then(g.caps("video/x-h264,"+size), FormatH264).
			then(g.add(KindParse, "h264parse"), FormatH264).
			then(g.add(KindDecode, "nvv4l2decoder"), FormatNVMM)
	case streams.InputNV12:
		c.then(src, FormatRaw).
			then(g.caps("video/x-raw,format=NV12,"+size), FormatRaw).
			then(g.add(KindConvert, "nvvidconv"), FormatNVMM).
			then(g.caps("video/x-raw(memory:NVMM),format=NV12"), FormatNVMM)
	case streams.InputRaw:
		c.then(src, FormatRaw).
			then(g.caps("video/x-raw,"+size), FormatRaw).
			then(g.add(KindConvert, "nvvidconv"), FormatNVMM).
			then(g.caps("video/x-raw(memory:NVMM),format=NV12"), FormatNVMM)
	default:
		return nil, streams.ConfigError("unknown input format %q", camera.InputFormat)
	}

	root := g.add(KindSplit, "tee")
	root.Name = "t"
	c.then(root, FormatNVMM)

	for gi, grp := range groups {
		if grp.Width <= 0 || grp.Height <= 0 {
			return nil, streams.ConfigError("group %d: invalid size %dx%d", gi, grp.Width, grp.Height)
		}
		tag := codecTag(grp.Codec)
		encoded := codecFormat(grp.Codec)

		branch := &chain{g: g, tail: root, fmt: FormatNVMM}
		branch.then(boundedQueue(g, true), FormatNVMM)
		if grp.Framerate > 0 && grp.Framerate < fps {
			branch.then(g.add(KindRate, "videorate",
				Prop{"drop-only", "true"},
				Prop{"max-rate", strconv.Itoa(grp.Framerate)},
			), FormatNVMM)
		}
		branch.then(g.add(KindScale, "nvvidconv"), FormatNVMM).
			then(g.caps(fmt.Sprintf("video/x-raw(memory:NVMM),width=%d,height=%d,format=NV12", grp.Width, grp.Height)), FormatNVMM).
			then(g.add(KindEncode, "nvv4l2h"+tag+"enc",
				Prop{"bitrate", strconv.Itoa(grp.Bitrate * 1000)},
				Prop{"preset-level", "1"},
				Prop{"iframeinterval", fanoutIFrames},
				Prop{"insert-sps-pps", "true"},
				Prop{"maxperf-enable", "true"},
			), encoded).
			then(g.add(KindParse, "h"+tag+"parse", Prop{"config-interval", "1"}), encoded)

		split := g.add(KindSplit, "tee")
		split.Name = fmt.Sprintf("tee_%d", gi)
		branch.then(split, encoded)

		for _, m := range grp.Members {
			if m < 0 || m >= len(addrs) {
				return nil, streams.NewStreamError(streams.ErrCodeGraphBuild,
					fmt.Sprintf("group %s: no address for stream %d", grp.Key(), m), nil)
			}
			out := &chain{g: g, tail: split, fmt: encoded}
			out.then(boundedQueue(g, false), encoded).
				then(packetizer(g, grp.Codec), FormatRTP).
				then(udpSink(g, addrs[m]), FormatRTP)
		}
	}

	if err := g.Validate(); err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeGraphBuild, "invalid fan-out graph", err)
	}
	return g, nil
}

func packetizer(g *Graph, codec streams.Codec) *Node {
	return g.add(KindPacketize, "rtph"+codecTag(codec)+"pay",
		Prop{"pt", payloadType},
		Prop{"config-interval", "1"},
		Prop{"mtu", rtpMTU},
	)
}

func udpSink(g *Graph, addr streams.Address) *Node {
	return g.add(KindSink, "udpsink",
		Prop{"host", addr.Host},
		Prop{"port", strconv.Itoa(addr.Port)},
		Prop{"sync", "false"},
		Prop{"async", "false"},
		Prop{"buffer-size", sinkBuffer},
	)
}
