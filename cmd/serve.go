// Package cmd holds the teecast subcommands and the runtime wiring they
// share with the root command.
package cmd

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/teecast/internal/api"
	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/devices"
	"github.com/smazurov/teecast/internal/engine"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/metrics"
	"github.com/smazurov/teecast/internal/netinfo"
	"github.com/smazurov/teecast/internal/streams"
	"github.com/smazurov/teecast/internal/supervisor"
	"github.com/smazurov/teecast/internal/systemd"
)

// Settings are the runtime options every serving mode shares. They come
// from the root flags, TEECAST_ env vars and teecast.toml.
type Settings struct {
	BasePort        int
	GracePeriod     time.Duration
	OnDemand        bool
	EngineBinary    string
	EngineInProcess bool

	APIAddr     string
	APIUsername string
	APIPassword string
	Metrics     bool
}

// Service is a supervisor together with the status it exposes.
type Service interface {
	api.StatusSource
	Run(ctx context.Context) error
}

// Serve runs the service returned by build until ctx is done or the
// service ends, with the status API next to it when an address is set.
func Serve(ctx context.Context, s Settings, build func(supervisor.Options) Service) error {
	bus := events.New()
	eng, err := engine.New(engine.Options{
		Binary:    s.EngineBinary,
		InProcess: s.EngineInProcess,
		Bus:       bus,
		Logger:    logging.GetLogger("engine"),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	hosts := netinfo.Hosts(netinfo.Addresses())
	svc := build(supervisor.Options{
		BasePort:    s.BasePort,
		GracePeriod: s.GracePeriod,
		OnDemand:    s.OnDemand,
		Engine:      eng,
		Detector:    devices.DefaultChain(),
		Bus:         bus,
		Notifier:    systemd.NewNotifier(logging.GetLogger("systemd")),
		Hosts:       hosts,
		Logger:      logging.GetLogger("supervisor"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return svc.Run(gctx)
	})

	if s.APIAddr != "" {
		opts := &api.Options{
			Status:       svc,
			Cameras:      devices.NewLister(),
			Bus:          bus,
			Hosts:        hosts,
			AuthUsername: s.APIUsername,
			AuthPassword: s.APIPassword,
		}
		if s.Metrics {
			opts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(opts)
		g.Go(func() error {
			return server.Run(gctx, s.APIAddr)
		})
	}
	return g.Wait()
}

// fanoutService runs a fan-out supervisor on a loaded config, optionally
// rebuilding it when the file changes.
type fanoutService struct {
	*supervisor.Fanout
	cfg    *config.StreamsConfig
	watch  bool
	logger *slog.Logger
}

func (s *fanoutService) Run(ctx context.Context) error {
	if s.watch {
		w := config.NewConfigWatcher(s.cfg.Path, config.LoadStreams, logging.GetLogger("config"),
			config.WithErrorHandler[*config.StreamsConfig](s.ReloadFailed))
		w.OnReload(s.Reload)
		if err := w.Start(); err != nil {
			s.logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
		} else {
			s.logger.Info("Watching stream config", "path", s.cfg.Path)
			defer func() { _ = w.Stop() }()
		}
	}
	return s.Fanout.Run(ctx, s.cfg)
}

// ServeFanout loads the fan-out config at path and serves it.
func ServeFanout(ctx context.Context, s Settings, path string, watch bool) error {
	cfg, err := config.LoadStreams(path)
	if err != nil {
		return err
	}
	return Serve(ctx, s, func(opts supervisor.Options) Service {
		return &fanoutService{
			Fanout: supervisor.NewFanout(opts),
			cfg:    cfg,
			watch:  watch,
			logger: opts.Logger,
		}
	})
}

// FailureReason classifies a fatal runtime error for the exit log line.
func FailureReason(err error) string {
	switch {
	case streams.IsConfigError(err):
		return "configuration"
	case streams.IsGraphError(err):
		return "pipeline"
	case streams.HasCode(err, streams.ErrCodeEngineError):
		return "engine"
	default:
		return "startup"
	}
}
