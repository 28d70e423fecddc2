package streaming

import (
	"fmt"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
)

// FormatFor maps an endpoint payload to the RTSP format announced in SDP.
func FormatFor(payload core.Codec) (format.Format, error) {
	switch payload.Name {
	case core.CodecH264:
		return &format.H264{
			PayloadTyp:        payload.PayloadType,
			PacketizationMode: 1,
		}, nil
	case core.CodecH265:
		return &format.H265{
			PayloadTyp: payload.PayloadType,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported payload %q", payload.Name)
	}
}

// mediaFor wraps a format in a single-format video media.
func mediaFor(forma format.Format) *description.Media {
	return &description.Media{
		Type:    description.MediaTypeVideo,
		Formats: []format.Format{forma},
	}
}
