package pipeline

import (
	"fmt"
	"strconv"

	"github.com/smazurov/teecast/internal/streams"
)

const standaloneIFrames = "30"

// BuildStandalone builds a one-stream graph: capture, scale, encode and an
// RTP sink at addr. It backs single-stream and multi-camera modes.
func BuildStandalone(src streams.SourceSpec, out streams.StreamSpec, addr streams.Address) (*Graph, error) {
	if out.Width <= 0 || out.Height <= 0 {
		return nil, streams.ConfigError("stream %q: invalid output size %dx%d", out.Name, out.Width, out.Height)
	}
	fps := out.Framerate
	if fps <= 0 {
		fps = DefaultFramerate
	}

	g := &Graph{}
	c := &chain{g: g}
	if err := sourceChain(c, src, fps); err != nil {
		return nil, err
	}

	tag := codecTag(out.Codec)
	encoded := codecFormat(out.Codec)
	c.then(g.add(KindScale, "nvvidconv"), FormatNVMM).
		then(g.caps(fmt.Sprintf("video/x-raw(memory:NVMM),width=%d,height=%d,format=NV12", out.Width, out.Height)), FormatNVMM).
		then(g.add(KindEncode, "nvv4l2h"+tag+"enc",
			Prop{"bitrate", strconv.Itoa(out.Bitrate * 1000)},
			Prop{"preset-level", "1"},
			Prop{"iframeinterval", standaloneIFrames},
		), encoded).
		then(g.add(KindParse, "h"+tag+"parse"), encoded).
		then(packetizer(g, out.Codec), FormatRTP).
		then(udpSink(g, addr), FormatRTP)

	if err := g.Validate(); err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeGraphBuild, "invalid stream graph", err)
	}
	return g, nil
}

func sourceChain(c *chain, src streams.SourceSpec, fps int) error {
	g := c.g
	rate := fmt.Sprintf("framerate=%d/1", fps)

	switch src.Kind {
	case streams.SourceUSB:
		device := src.Device
		if device == "" {
			device = "/dev/video0"
		}
		size := ""
		if src.InputWidth > 0 && src.InputHeight > 0 {
			size = fmt.Sprintf("width=%d,height=%d,", src.InputWidth, src.InputHeight)
		}
		v4l2 := g.add(KindSource, "v4l2src", Prop{"device", quoted(device)})

		switch src.InputFormat {
		case streams.InputMJPEG:
			c.then(v4l2, FormatJPEG).
				then(g.caps("image/jpeg,"+size+rate), FormatJPEG).
				then(g.add(KindDecode, "nvv4l2decoder", Prop{"mjpeg", "1"}), FormatNVMM).
				then(g.add(KindQueue, "queue", Prop{"max-size-buffers", "3"}, Prop{"leaky", "downstream"}), FormatNVMM)
		case streams.InputNV12:
			c.then(v4l2, FormatRaw).
				then(g.caps("video/x-raw,format=NV12,"+size+rate), FormatRaw)
		case streams.InputH264:
			c.then(v4l2, FormatH264).
				then(g.caps("video/x-h264,"+size+rate), FormatH264).
				then(g.add(KindParse, "h264parse"), FormatH264).
				then(g.add(KindDecode, "nvv4l2decoder"), FormatNVMM)
		case streams.InputRaw, "":
			c.then(v4l2, FormatRaw).
				then(g.caps("video/x-raw,format=YUY2,"+size+rate), FormatRaw).
				then(g.add(KindConvert, "videoconvert"), FormatRaw)
		default:
			return streams.ConfigError("unknown input format %q", src.InputFormat)
		}

	case streams.SourceCSI:
		w, h := src.InputWidth, src.InputHeight
		if w <= 0 || h <= 0 {
			w, h = DefaultInputWidth, DefaultInputHeight
		}
		c.then(g.add(KindSource, "nvarguscamerasrc"), FormatNVMM).
			then(g.caps(fmt.Sprintf("video/x-raw(memory:NVMM),width=%d,height=%d,format=NV12,%s", w, h, rate)), FormatNVMM).
			then(g.add(KindConvert, "nvvidconv", Prop{"flip-method", strconv.Itoa(src.Flip)}), FormatNVMM)

	case streams.SourceRTSP:
		if src.URL == "" {
			return streams.ConfigError("rtsp source requires a url")
		}
		codec := src.InputCodec
		if codec == "" {
			codec = streams.CodecH264
		}
		tag := codecTag(codec)
		c.then(g.add(KindSource, "rtspsrc", Prop{"location", quoted(src.URL)}, Prop{"latency", "100"}), FormatRTP).
			then(g.add(KindDepay, "rtph"+tag+"depay"), codecFormat(codec)).
			then(g.add(KindParse, "h"+tag+"parse"), codecFormat(codec)).
			then(g.add(KindDecode, "nvv4l2decoder"), FormatNVMM)

	case streams.SourceTest:
		w, h := src.InputWidth, src.InputHeight
		if w <= 0 || h <= 0 {
			w, h = 640, 480
		}
		c.then(g.add(KindSource, "videotestsrc", Prop{"is-live", "true"}, Prop{"pattern", "ball"}), FormatRaw).
			then(g.caps(fmt.Sprintf("video/x-raw,width=%d,height=%d,%s", w, h, rate)), FormatRaw)

	default:
		return streams.ConfigError("unknown source %q", src.Kind)
	}
	return nil
}
