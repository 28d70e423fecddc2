package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is where a pooled process is in its life.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateExited   State = "exited" // ended on its own with code 0
	StateError    State = "error"  // failed to spawn or crashed
)

func (s State) active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Info is a snapshot of one pooled process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	Starts    int
	ExitCode  int
	LastError error
}

// StateChange describes one transition of a pooled process.
type StateChange struct {
	ID       string
	Old      State
	New      State
	ExitCode int
	Err      error
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// Command builds the command line for an ID. Required.
	Command func(id string) (Command, error)
	// Configure adjusts a Process before it is spawned.
	Configure func(id string, proc *Process)
	// OnStateChange observes every transition. It runs without pool
	// locks held.
	OnStateChange func(StateChange)
	// StopTimeout bounds how long Stop waits for an exit.
	StopTimeout time.Duration
	Logger      *slog.Logger
}

const defaultStopTimeout = 15 * time.Second

// entry is the pool's record of one process run.
type entry struct {
	info   Info
	proc   *Process
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool runs subprocesses keyed by ID, at most one per ID.
type Pool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	starts  map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. opts.Command is required.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Command == nil {
		return nil, errors.New("process pool needs a command builder")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
		starts:  make(map[string]int),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start spawns the process for id. Spawn failures are returned; a later
// exit is reported through OnStateChange.
func (p *Pool) Start(id string) error {
	p.mu.Lock()
	if e, ok := p.entries[id]; ok && e.info.State.active() {
		p.mu.Unlock()
		return fmt.Errorf("process %s already running", id)
	}
	command, err := p.opts.Command(id)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("build command for %s: %w", id, err)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.starts[id]++
	e := &entry{
		info:   Info{ID: id, State: StateStarting, StartedAt: time.Now(), Starts: p.starts[id]},
		proc:   NewProcess(id, command, p.logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if p.opts.Configure != nil {
		p.opts.Configure(id, e.proc)
	}
	p.entries[id] = e
	p.mu.Unlock()
	p.notify(StateChange{ID: id, Old: StateIdle, New: StateStarting})

	if err := e.proc.Start(); err != nil {
		cancel()
		p.transition(e, StateError, 1, err)
		close(e.done)
		return err
	}

	p.mu.Lock()
	e.info.PID = e.proc.PID()
	p.mu.Unlock()
	p.transition(e, StateRunning, 0, nil)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(e.done)
		p.wait(ctx, e)
	}()
	return nil
}

func (p *Pool) wait(ctx context.Context, e *entry) {
	code := e.proc.Wait(ctx)

	switch {
	case ctx.Err() != nil:
		p.transition(e, StateIdle, code, nil)
	case code != 0:
		p.logger.Error("Process crashed", "id", e.info.ID, "exit_code", code)
		p.transition(e, StateError, code, fmt.Errorf("process exited with code %d", code))
	default:
		p.transition(e, StateExited, 0, nil)
	}
	p.logger.Info("Process stopped", "id", e.info.ID, "exit_code", code)
}

// transition moves e to state and notifies outside the lock.
func (p *Pool) transition(e *entry, state State, code int, err error) {
	p.mu.Lock()
	old := e.info.State
	e.info.State = state
	e.info.ExitCode = code
	if err != nil {
		e.info.LastError = err
	}
	p.mu.Unlock()
	p.notify(StateChange{ID: e.info.ID, Old: old, New: state, ExitCode: code, Err: err})
}

// Stop interrupts the process for id and waits for it to exit. Stopping an
// unknown or finished process is a no-op.
func (p *Pool) Stop(id string) error {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	if s := e.info.State; s != StateRunning && s != StateStarting {
		delete(p.entries, id)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.transition(e, StateStopping, 0, nil)
	p.logger.Info("Stopping process", "id", id)
	e.cancel()

	select {
	case <-e.done:
	case <-time.After(p.opts.StopTimeout):
		p.logger.Warn("Timeout waiting for process to stop", "id", id)
	}

	p.mu.Lock()
	if p.entries[id] == e {
		delete(p.entries, id)
	}
	p.mu.Unlock()
	return nil
}

// Status returns a snapshot for id; unknown IDs are idle.
func (p *Pool) Status(id string) Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		return e.info
	}
	return Info{ID: id, State: StateIdle, Starts: p.starts[id]}
}

// Running reports whether the process for id is up.
func (p *Pool) Running(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return ok && e.info.State == StateRunning
}

// Close stops every process and waits for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	if len(ids) > 0 {
		p.logger.Info("Stopping all processes", "count", len(ids))
	}
	for _, id := range ids {
		_ = p.Stop(id)
	}
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) notify(change StateChange) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(change)
	}
}
