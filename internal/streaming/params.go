package streaming

import (
	"bytes"

	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// paramTracker copies in-band parameter sets into the announced format, so
// DESCRIBE answers after the first keyframe carry sprop parameters.
// The encoder repeats them every second with config-interval=1.
type paramTracker struct {
	forma format.Format
}

func newParamTracker(forma format.Format) *paramTracker {
	return &paramTracker{forma: forma}
}

// observe inspects one RTP payload.
func (t *paramTracker) observe(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch f := t.forma.(type) {
	case *format.H264:
		t.observeH264(f, payload)
	case *format.H265:
		t.observeH265(f, payload)
	}
}

func (t *paramTracker) observeH264(f *format.H264, payload []byte) {
	if h264Type(payload) == h264.NALUTypeSTAPA {
		// STAP-A: 1 byte header, then 16-bit size prefixed NAL units
		for _, nal := range splitAggregate(payload[1:]) {
			t.setH264(f, nal)
		}
		return
	}
	t.setH264(f, payload)
}

func (t *paramTracker) setH264(f *format.H264, nal []byte) {
	if len(nal) == 0 {
		return
	}
	sps, pps := f.SafeParams()
	switch h264Type(nal) {
	case h264.NALUTypeSPS:
		if !bytes.Equal(sps, nal) {
			f.SafeSetParams(clone(nal), pps)
		}
	case h264.NALUTypePPS:
		if !bytes.Equal(pps, nal) {
			f.SafeSetParams(sps, clone(nal))
		}
	}
}

func (t *paramTracker) observeH265(f *format.H265, payload []byte) {
	if len(payload) < 2 {
		return
	}
	if h265Type(payload) == h265.NALUType_AggregationUnit {
		// AP: 2 byte header, then 16-bit size prefixed NAL units
		for _, nal := range splitAggregate(payload[2:]) {
			t.setH265(f, nal)
		}
		return
	}
	t.setH265(f, payload)
}

func (t *paramTracker) setH265(f *format.H265, nal []byte) {
	if len(nal) < 2 {
		return
	}
	vps, sps, pps := f.SafeParams()
	switch h265Type(nal) {
	case h265.NALUType_VPS_NUT:
		if !bytes.Equal(vps, nal) {
			f.SafeSetParams(clone(nal), sps, pps)
		}
	case h265.NALUType_SPS_NUT:
		if !bytes.Equal(sps, nal) {
			f.SafeSetParams(vps, clone(nal), pps)
		}
	case h265.NALUType_PPS_NUT:
		if !bytes.Equal(pps, nal) {
			f.SafeSetParams(vps, sps, clone(nal))
		}
	}
}

func h264Type(nal []byte) h264.NALUType {
	return h264.NALUType(nal[0] & 0x1F)
}

func h265Type(nal []byte) h265.NALUType {
	return h265.NALUType((nal[0] >> 1) & 0x3F)
}

// splitAggregate splits 16-bit size prefixed NAL units. A truncated tail is
// dropped.
func splitAggregate(b []byte) [][]byte {
	var nals [][]byte
	for len(b) >= 2 {
		size := int(b[0])<<8 | int(b[1])
		b = b[2:]
		if size == 0 || size > len(b) {
			break
		}
		nals = append(nals, b[:size])
		b = b[size:]
	}
	return nals
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
