package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/metrics"
	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/process"
	"github.com/smazurov/teecast/internal/streams"
)

// Launcher runs each pipeline as a gst-launch-1.0 subprocess.
type Launcher struct {
	binary string
	bus    *events.Bus
	logger *slog.Logger
	gstLog *slog.Logger
	opts   Options
	pool   *process.Pool

	mu       sync.RWMutex
	descs    map[string]string
	monitors map[string]*outputMonitor
}

// NewLauncher creates a subprocess engine.
func NewLauncher(opts Options) *Launcher {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("engine")
	}

	l := &Launcher{
		binary:   binary,
		bus:      opts.Bus,
		logger:   logger,
		gstLog:   logging.GetLogger("gst"),
		opts:     opts,
		descs:    make(map[string]string),
		monitors: make(map[string]*outputMonitor),
	}
	// NewPool only fails without a command builder
	l.pool, _ = process.NewPool(process.PoolOptions{
		Command:       l.command,
		Configure:     l.configure,
		OnStateChange: l.onStateChange,
		Logger:        logger,
	})
	return l
}

// Register stores description under id.
func (l *Launcher) Register(id, description string) Pipeline {
	l.mu.Lock()
	l.descs[id] = description
	l.mu.Unlock()
	return &launchedPipeline{id: id, launcher: l}
}

// Command returns the command line a pipeline runs with.
func (l *Launcher) Command(id string) (process.Command, error) {
	return l.command(id)
}

// Status returns the pool state of a pipeline.
func (l *Launcher) Status(id string) process.Info {
	return l.pool.Status(id)
}

// Close stops every pipeline.
func (l *Launcher) Close() {
	l.pool.Close()
}

func (l *Launcher) command(id string) (process.Command, error) {
	l.mu.RLock()
	desc, ok := l.descs[id]
	l.mu.RUnlock()
	if !ok {
		return process.Command{}, fmt.Errorf("pipeline %s not registered", id)
	}
	// -e turns SIGINT into EOS so encoders flush before exit
	args := append([]string{"-e"}, pipeline.Args(desc)...)
	return process.Command{Path: l.binary, Args: args}, nil
}

func (l *Launcher) configure(id string, proc *process.Process) {
	mon := newOutputMonitor(id, l.bus)
	l.mu.Lock()
	l.monitors[id] = mon
	l.mu.Unlock()

	proc.SetLogParser(l.gstLog.With("pipeline", id), ParseLogLevel)
	proc.SetLineHandler(mon)
	if l.opts.GracefulTimeout > 0 {
		proc.SetTimeouts(l.opts.GracefulTimeout, l.opts.GracefulTimeout)
	}
}

func (l *Launcher) monitor(id string) *outputMonitor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.monitors[id]
}

func (l *Launcher) onStateChange(c process.StateChange) {
	if l.bus != nil {
		l.bus.Publish(events.PipelineStateEvent{
			PipelineID: c.ID,
			OldState:   string(c.Old),
			NewState:   string(c.New),
			Timestamp:  timestamp(),
		})
	}

	switch {
	case c.New == process.StateRunning:
		metrics.RecordEngineStart(c.ID)

	case c.New == process.StateIdle && c.Old != process.StateStarting:
		metrics.RecordEngineStop(c.ID, metrics.StopRequested)

	case c.New == process.StateExited:
		metrics.RecordEngineStop(c.ID, metrics.StopEOS)
		l.logger.Info("Pipeline reached end of stream", "pipeline", c.ID)
		l.publishEngine(c.ID, events.EngineEOS, "end of stream", c.ExitCode)

	case c.New == process.StateError && c.Old != process.StateStarting:
		// spawn failures are returned by Start, only runtime exits are events
		metrics.RecordEngineStop(c.ID, metrics.StopError)
		message := fmt.Sprintf("gst-launch exited with code %d", c.ExitCode)
		if mon := l.monitor(c.ID); mon != nil {
			if lastError, _ := mon.Result(); lastError != "" {
				message = lastError
			}
		}
		l.logger.Error("Pipeline failed", "pipeline", c.ID, "exit_code", c.ExitCode, "error", message)
		l.publishEngine(c.ID, events.EngineError, message, c.ExitCode)
	}
}

func (l *Launcher) publishEngine(id string, kind events.EngineEventKind, message string, exitCode int) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.EngineEvent{
		PipelineID: id,
		Kind:       kind,
		Message:    message,
		ExitCode:   exitCode,
		Timestamp:  timestamp(),
	})
}

// launchedPipeline is the Pipeline handle of a Launcher.
type launchedPipeline struct {
	id       string
	launcher *Launcher
}

func (p *launchedPipeline) ID() string { return p.id }

// Start spawns gst-launch. A spawn failure is a GRAPH_START_ERROR; errors
// after spawn arrive as engine events.
func (p *launchedPipeline) Start() error {
	if p.launcher.pool.Running(p.id) {
		return nil
	}
	if err := p.launcher.pool.Start(p.id); err != nil {
		return streams.NewStreamError(streams.ErrCodeGraphStart, "start pipeline "+p.id, err)
	}
	return nil
}

// Stop sends EOS and waits for the subprocess to exit.
func (p *launchedPipeline) Stop() error {
	return p.launcher.pool.Stop(p.id)
}

func (p *launchedPipeline) Running() bool {
	return p.launcher.pool.Running(p.id)
}
