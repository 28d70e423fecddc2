package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/teecast/cmd"
	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/lifecycle"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/streams"
	"github.com/smazurov/teecast/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to settings file" short:"c" default:"teecast.toml"`

	// Fan-out settings
	Streams string `help:"Fan-out stream config (JSON)" short:"s" default:"streams.json" toml:"streams.config_file" env:"STREAMS_CONFIG"`
	Watch   bool   `help:"Rebuild the runtime when the stream config changes" default:"false" toml:"streams.watch" env:"STREAMS_WATCH"`

	// Runtime settings
	OnDemand    bool   `help:"Run pipelines only while clients are connected" default:"false" toml:"runtime.on_demand" env:"ON_DEMAND"`
	BasePort    int    `help:"First internal relay port" default:"15000" toml:"runtime.base_port" env:"BASE_PORT"`
	GracePeriod string `help:"How long an on-demand pipeline outlives its last client" default:"5s" toml:"runtime.grace_period" env:"GRACE_PERIOD"`

	// Engine settings
	EngineBinary    string `help:"gst-launch executable" default:"gst-launch-1.0" toml:"engine.binary" env:"ENGINE_BINARY"`
	EngineInProcess bool   `help:"Run graphs in process with go-gst (gst builds only)" default:"false" toml:"engine.in_process" env:"ENGINE_IN_PROCESS"`

	// Status API settings
	APIAddr     string `help:"Status API listen address, empty disables it" default:"" toml:"api.addr" env:"API_ADDR"`
	APIUsername string `help:"Status API basic auth username" default:"" toml:"api.username" env:"API_USERNAME"`
	APIPassword string `help:"Status API basic auth password" default:"" toml:"api.password" env:"API_PASSWORD"`
	Metrics     bool   `help:"Serve Prometheus metrics on the status API" default:"true" toml:"api.metrics" env:"API_METRICS"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingStreaming  string `help:"RTSP server logging level" default:"info" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingRelay      string `help:"Relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingLifecycle  string `help:"Lifecycle logging level" default:"info" toml:"logging.lifecycle" env:"LOGGING_LIFECYCLE"`
	LoggingEngine     string `help:"Engine logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingGst        string `help:"GStreamer output logging level" default:"info" toml:"logging.gst" env:"LOGGING_GST"`
	LoggingDevices    string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingConfig     string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func (o *Options) settings() cmd.Settings {
	grace, err := time.ParseDuration(o.GracePeriod)
	if err != nil || grace <= 0 {
		if o.GracePeriod != "" {
			slog.Warn("Invalid grace period, using default", "value", o.GracePeriod, "default", lifecycle.DefaultGracePeriod)
		}
		grace = lifecycle.DefaultGracePeriod
	}
	base := o.BasePort
	if base <= 0 {
		base = streams.DefaultBasePort
	}
	return cmd.Settings{
		BasePort:        base,
		GracePeriod:     grace,
		OnDemand:        o.OnDemand,
		EngineBinary:    o.EngineBinary,
		EngineInProcess: o.EngineInProcess,
		APIAddr:         o.APIAddr,
		APIUsername:     o.APIUsername,
		APIPassword:     o.APIPassword,
		Metrics:         o.Metrics,
	}
}

func main() {
	var cli humacli.CLI
	var current *Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		current = opts

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"streaming":  opts.LoggingStreaming,
				"relay":      opts.LoggingRelay,
				"lifecycle":  opts.LoggingLifecycle,
				"engine":     opts.LoggingEngine,
				"gst":        opts.LoggingGst,
				"devices":    opts.LoggingDevices,
				"config":     opts.LoggingConfig,
				"api":        opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			logger.Info("Starting teecast", "version", version.Get().String(), "config", opts.Streams)
			if err := cmd.ServeFanout(ctx, opts.settings(), opts.Streams, opts.Watch); err != nil {
				logger.Error("Fan-out runtime failed", "reason", cmd.FailureReason(err), "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				logger.Warn("Shutdown timed out")
			}
		})
	})

	settings := func() cmd.Settings {
		if current == nil {
			return (&Options{GracePeriod: "5s"}).settings()
		}
		return current.settings()
	}

	root := cli.Root()
	root.Use = "teecast"
	root.Short = "Serve one camera as several RTSP streams"
	root.Version = version.Get().String()

	root.AddCommand(cmd.CreateSingleCmd(settings))
	root.AddCommand(cmd.CreateMultiCmd(settings))
	root.AddCommand(cmd.CreateListCamerasCmd())
	root.AddCommand(cmd.CreateListFormatsCmd())
	root.AddCommand(cmd.GenerateConfigCmd)
	root.AddCommand(cmd.CreateValidateCmd(settings))

	// Run the CLI
	cli.Run()
}
