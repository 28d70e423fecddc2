//go:build gst

package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/metrics"
	"github.com/smazurov/teecast/internal/streams"
)

// inProcess runs pipelines inside this process through go-gst.
type inProcess struct {
	bus    *events.Bus
	logger *slog.Logger

	mu        sync.Mutex
	pipelines map[string]*gstPipeline
}

func newInProcess(opts Options) (Engine, error) {
	gst.Init(nil)

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("engine")
	}
	return &inProcess{
		bus:       opts.Bus,
		logger:    logger,
		pipelines: make(map[string]*gstPipeline),
	}, nil
}

func (e *inProcess) Register(id, description string) Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.pipelines[id]; ok {
		_ = old.Stop()
	}
	p := &gstPipeline{id: id, desc: description, engine: e}
	e.pipelines[id] = p
	return p
}

func (e *inProcess) Close() {
	e.mu.Lock()
	pipelines := make([]*gstPipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.Unlock()

	for _, p := range pipelines {
		_ = p.Stop()
	}
}

func (e *inProcess) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

type gstPipeline struct {
	id     string
	desc   string
	engine *inProcess

	mu       sync.Mutex
	pipeline *gst.Pipeline
	stop     chan struct{}
	done     chan struct{}
}

func (p *gstPipeline) ID() string { return p.id }

func (p *gstPipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pipeline != nil
}

func (p *gstPipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline != nil {
		return nil
	}

	pl, err := gst.NewPipelineFromString(p.desc)
	if err != nil {
		return streams.NewStreamError(streams.ErrCodeGraphStart, "parse pipeline "+p.id, err)
	}
	if err := pl.SetState(gst.StatePlaying); err != nil {
		_ = pl.SetState(gst.StateNull)
		return streams.NewStreamError(streams.ErrCodeGraphStart, "play pipeline "+p.id, err)
	}

	p.pipeline = pl
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	metrics.RecordEngineStart(p.id)
	p.state("idle", "running")
	p.engine.logger.Info("Pipeline started", "pipeline", p.id)

	go p.watch(pl, p.stop, p.done)
	return nil
}

func (p *gstPipeline) Stop() error {
	p.mu.Lock()
	pl, stop, done := p.pipeline, p.stop, p.done
	p.stop = nil
	p.mu.Unlock()
	if pl == nil || stop == nil {
		return nil
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		p.engine.logger.Warn("Timeout waiting for bus watcher", "pipeline", p.id)
	}
	if p.release(pl) {
		metrics.RecordEngineStop(p.id, metrics.StopRequested)
		p.state("running", "idle")
	}
	return nil
}

// release moves pl to NULL once. It reports whether this call did it.
func (p *gstPipeline) release(pl *gst.Pipeline) bool {
	p.mu.Lock()
	if p.pipeline != pl {
		p.mu.Unlock()
		return false
	}
	p.pipeline = nil
	p.mu.Unlock()

	if err := pl.SetState(gst.StateNull); err != nil {
		p.engine.logger.Warn("Failed to set pipeline to NULL", "pipeline", p.id, "error", err)
	}
	return true
}

// watch polls the bus until stop is closed or the pipeline ends.
func (p *gstPipeline) watch(pl *gst.Pipeline, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	bus := pl.GetPipelineBus()

	for {
		select {
		case <-stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			p.finish(pl, events.EngineEOS, "end of stream", 0)
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			p.engine.logger.Error("Pipeline error",
				"pipeline", p.id,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			p.finish(pl, events.EngineError, gerr.Error(), 1)
			return

		case gst.MessageStateChanged:
			if msg.Source() == pl.GetName() {
				old, current := msg.ParseStateChanged()
				p.engine.logger.Debug("Pipeline state changed", "pipeline", p.id, "from", old, "to", current)
			}
		}
	}
}

func (p *gstPipeline) finish(pl *gst.Pipeline, kind events.EngineEventKind, message string, exitCode int) {
	if !p.release(pl) {
		return
	}
	reason, state := metrics.StopEOS, "exited"
	if kind == events.EngineError {
		reason, state = metrics.StopError, "error"
	}
	metrics.RecordEngineStop(p.id, reason)
	p.state("running", state)
	p.engine.publish(events.EngineEvent{
		PipelineID: p.id,
		Kind:       kind,
		Message:    message,
		ExitCode:   exitCode,
		Timestamp:  timestamp(),
	})
}

func (p *gstPipeline) state(old, current string) {
	p.engine.publish(events.PipelineStateEvent{
		PipelineID: p.id,
		OldState:   old,
		NewState:   current,
		Timestamp:  timestamp(),
	})
}
