package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/smazurov/teecast/internal/api"
	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/engine"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/lifecycle"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/metrics"
	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/streaming"
	"github.com/smazurov/teecast/internal/streams"
)

// SinglePipelineID identifies the pipeline of single-stream mode.
const SinglePipelineID = "single"

// Restart pacing for multi-camera pipelines that die.
const (
	restartInterval = 5 * time.Second
	restartBurst    = 2
)

// Unit is one independently encoded stream.
type Unit struct {
	Source   streams.SourceSpec
	Stream   streams.StreamSpec
	OnDemand bool
}

// Standalone runs each unit as its own pipeline behind shared RTSP
// listeners. In single mode any failure ends the run; in multi-camera mode
// a failing unit is skipped or restarted and the others continue.
type Standalone struct {
	opts   Options
	units  []Unit
	multi  bool
	logger *slog.Logger

	mu      sync.RWMutex
	reg     *endpoints.Registry
	hub     *streaming.Hub
	running []*unit
	byIndex map[int]*unit

	wg sync.WaitGroup
}

type unit struct {
	id       string
	spec     Unit
	endpoint *endpoints.Endpoint
	pipe     engine.Pipeline
	ctrl     *lifecycle.Controller
	limiter  *rate.Limiter
}

// NewSingle serves one stream. Errors are fatal and the engine ending ends
// the run.
func NewSingle(opts Options, u Unit) *Standalone {
	opts.defaults()
	if opts.OnDemand {
		u.OnDemand = true
	}
	return &Standalone{opts: opts, units: []Unit{u}, logger: opts.Logger}
}

// NewMulti serves every enabled stream of cfg, each from its own source.
func NewMulti(opts Options, cfg *config.MultiConfig) *Standalone {
	opts.defaults()
	var units []Unit
	for _, s := range streams.Enabled(cfg.Streams) {
		u := Unit{Stream: s, OnDemand: opts.OnDemand || cfg.OnDemand}
		if s.Source != nil {
			u.Source = *s.Source
		}
		units = append(units, u)
	}
	return &Standalone{opts: opts, units: units, multi: true, logger: opts.Logger}
}

// Prepare builds and verifies every unit's graph without binding anything.
// Run calls it when it has not been called.
func (s *Standalone) Prepare(ctx context.Context) error {
	reg := endpoints.NewRegistry()
	byIndex := make(map[int]*unit)
	var running []*unit

	for _, spec := range s.units {
		u, err := s.prepareUnit(ctx, reg, len(running), spec)
		if err != nil {
			if !s.multi {
				return err
			}
			s.logger.Error("Skipping stream", "stream", spec.Stream.Name, "error", err)
			continue
		}
		running = append(running, u)
		byIndex[u.endpoint.Index] = u
	}
	if len(running) == 0 {
		return streams.ConfigError("no stream could be built")
	}

	s.mu.Lock()
	s.reg, s.byIndex, s.running = reg, byIndex, running
	s.mu.Unlock()
	return nil
}

func (s *Standalone) pipelineID(i int) string {
	if !s.multi {
		return SinglePipelineID
	}
	return fmt.Sprintf("stream-%d", i+1)
}

func (s *Standalone) prepareUnit(ctx context.Context, reg *endpoints.Registry, slot int, spec Unit) (*unit, error) {
	src, out := spec.Source, spec.Stream
	if src.Kind == streams.SourceUSB && (src.InputWidth == 0 || src.InputHeight == 0) && s.opts.Detector != nil {
		m := s.opts.Detector.AutoDetect(ctx, src.Device, src.InputFormat, out.Width, out.Height, out.Framerate)
		src.InputWidth, src.InputHeight = m.Resolution.Width, m.Resolution.Height
		out.Framerate = m.Framerate
		s.logger.Info("Camera mode detected",
			"stream", out.Name, "device", src.Device, "mode", m.Resolution.String(), "framerate", m.Framerate, "strategy", m.Strategy)
	}

	addr := streams.Address{Host: streams.InternalHost, Port: s.opts.BasePort + slot}
	if addr.Port > 65535 {
		return nil, streams.ConfigError("internal port %d out of range", addr.Port)
	}
	g, err := pipeline.BuildStandalone(src, out, addr)
	if err != nil {
		return nil, err
	}
	e, err := reg.Register(slot, out, addr, out.Codec, slot)
	if err != nil {
		return nil, err
	}
	if err := endpoints.VerifyEndpoint(g, e); err != nil {
		return nil, err
	}

	spec.Source, spec.Stream = src, out
	id := s.pipelineID(slot)
	u := &unit{
		id:       id,
		spec:     spec,
		endpoint: e,
		pipe:     s.opts.Engine.Register(id, pipeline.Render(g)),
		limiter:  rate.NewLimiter(rate.Every(restartInterval), restartBurst),
	}
	if spec.OnDemand {
		u.ctrl = s.opts.controller(id, u.pipe)
	}
	return u, nil
}

// Run serves until ctx is done. In single mode end of stream returns nil
// and an engine error returns an ENGINE_ERROR.
func (s *Standalone) Run(ctx context.Context) error {
	bus := s.opts.Bus
	engineCh, unsubEngine := engineEvents(bus)
	defer unsubEngine()

	s.mu.RLock()
	prepared := s.reg != nil
	s.mu.RUnlock()
	if !prepared {
		if err := s.Prepare(ctx); err != nil {
			return err
		}
	}

	hub, err := streaming.NewHub(s.reg, bus, logging.GetLogger("streaming"))
	if err != nil {
		return err
	}
	if err := hub.Start(); err != nil {
		return err
	}
	defer hub.Forget()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	hubDone := make(chan error, 1)
	go func() {
		hubDone <- hub.Run(rctx)
	}()

	unsubClient := bus.Subscribe(s.onClient)
	defer unsubClient()
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()

	for _, u := range s.running {
		metrics.SetEncoders(u.id, 1)
		if u.ctrl != nil {
			continue
		}
		if err := u.pipe.Start(); err != nil {
			if !s.multi {
				cancel()
				<-hubDone
				return err
			}
			s.logger.Error("Stream failed to start", "stream", u.spec.Stream.Name, "error", err)
			s.scheduleRestart(rctx, u)
		}
	}

	groups := make([]streams.Group, len(s.running))
	for i, u := range s.running {
		groups[i] = streams.Group{Width: u.spec.Stream.Width, Height: u.spec.Stream.Height,
			Bitrate: u.spec.Stream.Bitrate, Codec: u.spec.Stream.Codec, Members: []int{i}}
	}
	s.opts.Notifier.Status(logBanner(s.logger, s.reg, groups, s.opts.Hosts, s.anyOnDemand()))

	s.opts.Notifier.Ready()
	defer s.opts.Notifier.Stopping()

	result := s.loop(ctx, engineCh, hubDone)
	cancel()
	s.wg.Wait()
	s.stopAll()
	if result.hubPending {
		<-hubDone
	}
	return result.err
}

type loopResult struct {
	err        error
	hubPending bool
}

func (s *Standalone) loop(ctx context.Context, engineCh <-chan events.EngineEvent, hubDone <-chan error) loopResult {
	byID := make(map[string]*unit, len(s.running))
	for _, u := range s.running {
		byID[u.id] = u
	}

	for {
		select {
		case <-ctx.Done():
			return loopResult{hubPending: true}

		case err := <-hubDone:
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			return loopResult{err: err}

		case ev := <-engineCh:
			u, ok := byID[ev.PipelineID]
			if !ok {
				continue
			}
			switch ev.Kind {
			case events.EngineWarning:
				s.logger.Warn("Engine warning", "stream", u.spec.Stream.Name, "message", ev.Message)
				continue
			case events.EngineEOS:
				if !s.multi {
					s.logger.Info("Pipeline reached end of stream, shutting down")
					return loopResult{hubPending: true}
				}
			case events.EngineError:
				if !s.multi {
					return loopResult{err: streams.NewStreamError(streams.ErrCodeEngineError, ev.Message, nil), hubPending: true}
				}
			}
			s.died(ctx, u, ev)
		}
	}
}

// died handles a multi-camera pipeline that exited on its own. An
// on-demand stream is marked idle and restarted only while clients
// remain; an always-on stream is restarted.
func (s *Standalone) died(ctx context.Context, u *unit, ev events.EngineEvent) {
	s.logger.Warn("Stream pipeline ended", "stream", u.spec.Stream.Name, "kind", ev.Kind, "message", ev.Message)
	if u.ctrl != nil {
		u.ctrl.Reset()
		if _, clients := u.ctrl.Snapshot(); clients == 0 {
			return
		}
	}
	s.scheduleRestart(ctx, u)
}

func (s *Standalone) scheduleRestart(ctx context.Context, u *unit) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := u.limiter.Wait(ctx); err != nil {
			return
		}
		var err error
		if u.ctrl != nil {
			err = u.ctrl.Start()
		} else {
			err = u.pipe.Start()
		}
		if err != nil {
			s.logger.Error("Stream restart failed", "stream", u.spec.Stream.Name, "error", err)
			s.scheduleRestart(ctx, u)
			return
		}
		s.logger.Info("Stream restarted", "stream", u.spec.Stream.Name)
	}()
}

func (s *Standalone) stopAll() {
	for _, u := range s.running {
		var err error
		if u.ctrl != nil {
			err = u.ctrl.Stop()
		} else {
			err = u.pipe.Stop()
		}
		if err != nil {
			s.logger.Warn("Pipeline did not stop cleanly", "stream", u.spec.Stream.Name, "error", err)
		}
	}
}

func (s *Standalone) anyOnDemand() bool {
	for _, u := range s.running {
		if u.spec.OnDemand {
			return true
		}
	}
	return false
}

func (s *Standalone) onClient(e events.ClientEvent) {
	s.mu.RLock()
	reg, byIndex := s.reg, s.byIndex
	s.mu.RUnlock()
	if reg == nil {
		return
	}
	ep, ok := reg.Find(e.Port, e.Mount)
	if !ok {
		return
	}
	u := byIndex[ep.Index]
	if u == nil || u.ctrl == nil {
		return
	}
	switch e.Action {
	case events.ClientConnected:
		if err := u.ctrl.OnClientConnect(); err != nil {
			s.logger.Error("On-demand start failed", "stream", u.spec.Stream.Name, "error", err)
		}
	case events.ClientDisconnected:
		u.ctrl.OnClientDisconnect()
	}
}

// Endpoints returns every served endpoint.
func (s *Standalone) Endpoints() []*endpoints.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reg == nil {
		return nil
	}
	return s.reg.Endpoints()
}

// Clients returns playing sessions on a mount.
func (s *Standalone) Clients(port int, mount string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hub == nil {
		return 0
	}
	return s.hub.Clients(port, mount)
}

// Lifecycle reports each stream's pipeline state.
func (s *Standalone) Lifecycle() []api.LifecycleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hub == nil {
		return nil
	}
	out := make([]api.LifecycleStatus, 0, len(s.running))
	for _, u := range s.running {
		out = append(out, pipelineStatus(u.id, u.pipe, u.ctrl, s.hub, []*endpoints.Endpoint{u.endpoint}))
	}
	return out
}
