package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/smazurov/teecast/internal/api"
	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/engine"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/lifecycle"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/metrics"
	"github.com/smazurov/teecast/internal/streaming"
	"github.com/smazurov/teecast/internal/streams"
)

// Fanout serves one camera through a single tee graph. With a watched
// config it rebuilds the whole runtime on every valid change.
type Fanout struct {
	opts    Options
	logger  *slog.Logger
	reloads chan *config.StreamsConfig

	mu      sync.RWMutex
	path    string
	current *fanoutRuntime
}

// fanoutRuntime is one generation of a fan-out runtime.
type fanoutRuntime struct {
	layout   *Layout
	hub      *streaming.Hub
	pipe     engine.Pipeline
	ctrl     *lifecycle.Controller
	onDemand bool

	cancel   context.CancelFunc
	finished chan struct{}
	hubErr   error
}

// NewFanout creates a fan-out supervisor.
func NewFanout(opts Options) *Fanout {
	opts.defaults()
	return &Fanout{
		opts:    opts,
		logger:  opts.Logger,
		reloads: make(chan *config.StreamsConfig, 1),
	}
}

// Reload queues cfg to replace the running config. Only the newest queued
// config is kept. It is safe to call from a config watcher.
func (f *Fanout) Reload(cfg *config.StreamsConfig) {
	for {
		select {
		case f.reloads <- cfg:
			return
		default:
		}
		select {
		case <-f.reloads:
		default:
		}
	}
}

// ReloadFailed reports a config change that could not be loaded. The
// running config stays in place.
func (f *Fanout) ReloadFailed(err error) {
	f.mu.RLock()
	path := f.path
	f.mu.RUnlock()
	f.logger.Error("Ignoring invalid config change", "path", path, "error", err)
	f.opts.Bus.Publish(events.ConfigReloadedEvent{Path: path, Error: err.Error(), Timestamp: timestamp()})
}

// Run serves cfg until ctx is done or the engine ends. End of stream
// returns nil; an engine error returns an ENGINE_ERROR.
func (f *Fanout) Run(ctx context.Context, cfg *config.StreamsConfig) error {
	bus := f.opts.Bus
	engineCh, unsubEngine := engineEvents(bus)
	defer unsubEngine()
	unsubClient := bus.Subscribe(f.onClient)
	defer unsubClient()

	rt, err := f.start(ctx, cfg)
	if err != nil {
		return err
	}
	f.opts.Notifier.Ready()
	defer f.opts.Notifier.Stopping()

	for {
		select {
		case <-ctx.Done():
			f.teardown(rt)
			return nil

		case <-rt.finished:
			f.teardown(rt)
			return rt.hubErr

		case ev := <-engineCh:
			if ev.PipelineID != FanoutPipelineID {
				continue
			}
			switch ev.Kind {
			case events.EngineWarning:
				f.logger.Warn("Engine warning", "message", ev.Message)
			case events.EngineEOS:
				f.logger.Info("Pipeline reached end of stream, shutting down")
				f.teardown(rt)
				return nil
			case events.EngineError:
				f.teardown(rt)
				return streams.NewStreamError(streams.ErrCodeEngineError, ev.Message, nil)
			}

		case next := <-f.reloads:
			var applied bool
			rt, applied, err = f.reload(ctx, rt, cfg, next)
			if err != nil {
				return err
			}
			if applied {
				cfg = next
			}
		}
	}
}

// reload swaps rt for a runtime built from next. A config that fails to
// prepare leaves rt running; one that fails to start falls back to prev.
// applied reports whether next is now running.
func (f *Fanout) reload(ctx context.Context, rt *fanoutRuntime, prev, next *config.StreamsConfig) (*fanoutRuntime, bool, error) {
	f.logger.Info("Stream config changed, rebuilding", "path", next.Path)

	layout, err := PrepareFanout(ctx, next, f.opts.BasePort, f.opts.Detector, f.logger)
	if err != nil {
		f.ReloadFailed(err)
		return rt, false, nil
	}

	f.teardown(rt)
	fresh, err := f.startLayout(ctx, next, layout)
	if err != nil {
		f.logger.Error("New config failed to start, restoring previous", "error", err)
		f.opts.Bus.Publish(events.ConfigReloadedEvent{Path: next.Path, Error: err.Error(), Timestamp: timestamp()})
		restored, rerr := f.start(ctx, prev)
		if rerr != nil {
			return nil, false, errors.Join(err, rerr)
		}
		return restored, false, nil
	}

	f.opts.Bus.Publish(events.ConfigReloadedEvent{Path: next.Path, Timestamp: timestamp()})
	return fresh, true, nil
}

func (f *Fanout) start(ctx context.Context, cfg *config.StreamsConfig) (*fanoutRuntime, error) {
	layout, err := PrepareFanout(ctx, cfg, f.opts.BasePort, f.opts.Detector, f.logger)
	if err != nil {
		return nil, err
	}
	return f.startLayout(ctx, cfg, layout)
}

// startLayout binds listeners and relays, then starts the graph unless it
// waits for clients.
func (f *Fanout) startLayout(ctx context.Context, cfg *config.StreamsConfig, layout *Layout) (*fanoutRuntime, error) {
	hub, err := streaming.NewHub(layout.Registry, f.opts.Bus, logging.GetLogger("streaming"))
	if err != nil {
		return nil, err
	}
	if err := hub.Start(); err != nil {
		return nil, err
	}

	metrics.SetEncoders(FanoutPipelineID, len(layout.Plan.Groups))
	pipe := f.opts.Engine.Register(FanoutPipelineID, layout.Description)

	rctx, cancel := context.WithCancel(ctx)
	rt := &fanoutRuntime{
		layout:   layout,
		hub:      hub,
		pipe:     pipe,
		onDemand: f.opts.OnDemand || cfg.OnDemand,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	go func() {
		defer close(rt.finished)
		rt.hubErr = hub.Run(rctx)
	}()

	if rt.onDemand {
		rt.ctrl = f.opts.controller(FanoutPipelineID, pipe)
	} else if err := pipe.Start(); err != nil {
		cancel()
		<-rt.finished
		hub.Forget()
		return nil, err
	}

	f.mu.Lock()
	f.path = cfg.Path
	f.current = rt
	f.mu.Unlock()

	f.opts.Notifier.Status(logBanner(f.logger, layout.Registry, layout.Plan.Groups, f.opts.Hosts, rt.onDemand))
	f.logger.Debug("Fan-out pipeline", "description", layout.Description)
	return rt, nil
}

// teardown stops the graph and waits for listeners and relays to close.
func (f *Fanout) teardown(rt *fanoutRuntime) {
	f.mu.Lock()
	if f.current == rt {
		f.current = nil
	}
	f.mu.Unlock()

	var err error
	if rt.ctrl != nil {
		err = rt.ctrl.Stop()
	} else {
		err = rt.pipe.Stop()
	}
	if err != nil {
		f.logger.Warn("Pipeline did not stop cleanly", "error", err)
	}
	rt.cancel()
	<-rt.finished
	if rt.hubErr != nil && !errors.Is(rt.hubErr, context.Canceled) {
		f.logger.Warn("Relay ended with error", "error", rt.hubErr)
	}
	rt.hub.Forget()
}

func (f *Fanout) onClient(e events.ClientEvent) {
	f.mu.RLock()
	rt := f.current
	f.mu.RUnlock()
	if rt == nil || rt.ctrl == nil {
		return
	}
	if _, ok := rt.layout.Registry.Find(e.Port, e.Mount); !ok {
		return
	}
	switch e.Action {
	case events.ClientConnected:
		if err := rt.ctrl.OnClientConnect(); err != nil {
			f.logger.Error("On-demand start failed", "port", e.Port, "mount", e.Mount, "error", err)
		}
	case events.ClientDisconnected:
		rt.ctrl.OnClientDisconnect()
	}
}

// Endpoints returns the endpoints of the running config.
func (f *Fanout) Endpoints() []*endpoints.Endpoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil
	}
	return f.current.layout.Registry.Endpoints()
}

// Clients returns playing sessions on a mount of the running config.
func (f *Fanout) Clients(port int, mount string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return 0
	}
	return f.current.hub.Clients(port, mount)
}

// Lifecycle reports the fan-out pipeline state.
func (f *Fanout) Lifecycle() []api.LifecycleStatus {
	f.mu.RLock()
	rt := f.current
	f.mu.RUnlock()
	if rt == nil {
		return nil
	}
	return []api.LifecycleStatus{pipelineStatus(FanoutPipelineID, rt.pipe, rt.ctrl, rt.hub, rt.layout.Registry.Endpoints())}
}

// pipelineStatus reports a controller's view, or the engine's when the
// pipeline is always on.
func pipelineStatus(id string, pipe engine.Pipeline, ctrl *lifecycle.Controller, hub *streaming.Hub, eps []*endpoints.Endpoint) api.LifecycleStatus {
	if ctrl != nil {
		state, clients := ctrl.Snapshot()
		return api.LifecycleStatus{Pipeline: id, State: state, Clients: clients, OnDemand: true}
	}
	status := api.LifecycleStatus{Pipeline: id, State: lifecycle.Idle}
	if pipe.Running() {
		status.State = lifecycle.Running
	}
	for _, e := range eps {
		status.Clients += hub.Clients(e.Port, e.Mount)
	}
	return status
}
