package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/streams"
	"github.com/smazurov/teecast/internal/supervisor"
)

type singleFlags struct {
	source       string
	device       string
	url          string
	inputCodec   string
	inputFormat  string
	port         int
	mount        string
	codec        string
	bitrate      int
	inputWidth   int
	inputHeight  int
	outputWidth  int
	outputHeight int
	framerate    int
	flip         int
}

// unit turns the flags into a validated stream unit.
func (f *singleFlags) unit() (supervisor.Unit, error) {
	kind, err := streams.ParseSourceKind(f.source)
	if err != nil {
		return supervisor.Unit{}, err
	}
	codec, err := streams.ParseCodec(f.codec)
	if err != nil {
		return supervisor.Unit{}, err
	}
	src := streams.SourceSpec{
		Kind:        kind,
		Device:      f.device,
		URL:         f.url,
		InputWidth:  f.inputWidth,
		InputHeight: f.inputHeight,
		Flip:        f.flip,
	}
	if src.InputFormat, err = streams.ParseInputFormat(f.inputFormat); err != nil {
		return supervisor.Unit{}, err
	}
	if f.inputCodec != "" {
		if src.InputCodec, err = streams.ParseCodec(f.inputCodec); err != nil {
			return supervisor.Unit{}, err
		}
	}
	if kind == streams.SourceRTSP && f.url == "" {
		return supervisor.Unit{}, streams.ConfigError("--url is required for an rtsp source")
	}
	if f.flip < 0 || f.flip > 7 {
		return supervisor.Unit{}, streams.ConfigError("--flip must be between 0 and 7")
	}

	out := streams.StreamSpec{
		Name:      "stream",
		Enabled:   true,
		Width:     f.outputWidth,
		Height:    f.outputHeight,
		Framerate: f.framerate,
		Bitrate:   f.bitrate,
		Codec:     codec,
		Port:      f.port,
		Mount:     f.mount,
	}
	if err := out.Validate(); err != nil {
		return supervisor.Unit{}, err
	}
	return supervisor.Unit{Source: src, Stream: out}, nil
}

// CreateSingleCmd creates the single command. settings is read when the
// command runs, after the root options are parsed; the root --on-demand
// flag applies.
func CreateSingleCmd(settings func() Settings) *cobra.Command {
	f := &singleFlags{}

	cmd := &cobra.Command{
		Use:   "single",
		Short: "Serve one camera as one RTSP stream",
		Long: `Captures from a USB, CSI, RTSP or test source, encodes once and serves the result ` +
			`on a single RTSP mount. USB cameras without an input size are probed for the best mode.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("supervisor")

			u, err := f.unit()
			if err != nil {
				logger.Error("Invalid stream options", "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = Serve(ctx, settings(), func(opts supervisor.Options) Service {
				return supervisor.NewSingle(opts, u)
			})
			if err != nil {
				logger.Error("Stream failed", "reason", FailureReason(err), "error", err)
				stop()
				os.Exit(1)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.source, "source", "usb", "Source type: usb, csi, rtsp or test")
	flags.StringVar(&f.device, "device", "/dev/video0", "Capture device")
	flags.StringVar(&f.url, "url", "", "RTSP source URL")
	flags.StringVar(&f.inputCodec, "input-codec", "", "Codec of an RTSP source: h264 or h265")
	flags.StringVar(&f.inputFormat, "input-format", "mjpeg", "USB input format: mjpeg, nv12 or yuyv")
	flags.IntVar(&f.port, "port", config.DefaultRTSPPort, "RTSP port")
	flags.StringVar(&f.mount, "mount", "/stream", "RTSP mount path")
	flags.StringVar(&f.codec, "codec", "h265", "Output codec: h264 or h265")
	flags.IntVar(&f.bitrate, "bitrate", 4000, "Bitrate in kbps")
	flags.IntVar(&f.inputWidth, "input-width", 0, "Capture width, 0 to auto-detect")
	flags.IntVar(&f.inputHeight, "input-height", 0, "Capture height, 0 to auto-detect")
	flags.IntVar(&f.outputWidth, "output-width", 1920, "Output width")
	flags.IntVar(&f.outputHeight, "output-height", 1080, "Output height")
	flags.IntVar(&f.framerate, "framerate", 30, "Output framerate")
	flags.IntVar(&f.flip, "flip", 0, "CSI flip method (0-7)")

	return cmd
}
