// Package lifecycle starts and stops an encoding graph according to the
// number of connected RTSP clients.
package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod is how long the graph keeps running after the last
// client leaves.
const DefaultGracePeriod = 5 * time.Second

// State of the controlled graph.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Graph is what the controller starts and stops.
type Graph interface {
	Start() error
	Stop() error
}

// Scheduler runs fn once after d. time.AfterFunc satisfies it.
type Scheduler func(d time.Duration, fn func())

func afterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Option configures a Controller.
type Option func(*Controller)

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Controller) { c.grace = d }
}

// WithScheduler replaces time.AfterFunc, mainly in tests.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.schedule = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStateHook is called, outside the lock, after every transition.
func WithStateHook(fn func(old, new State, clients int)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller owns the client count and the graph state. All methods are
// safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	graph    Graph
	state    State
	clients  int
	grace    time.Duration
	schedule Scheduler
	logger   *slog.Logger
	onChange func(old, new State, clients int)
}

// New returns an idle controller for graph.
func New(graph Graph, opts ...Option) *Controller {
	c := &Controller{
		graph:    graph,
		grace:    DefaultGracePeriod,
		schedule: afterFunc,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnClientConnect counts a new client and starts the graph for the first
// one. A start failure leaves the controller idle and is returned.
func (c *Controller) OnClientConnect() error {
	c.mu.Lock()
	c.clients++
	clients := c.clients
	if clients != 1 || c.state != Idle {
		c.mu.Unlock()
		c.logger.Debug("Client connected", "clients", clients)
		return nil
	}
	err := c.startLocked()
	c.mu.Unlock()

	c.logger.Info("Client connected", "clients", clients)
	if err != nil {
		c.logger.Error("Failed to start pipeline on demand", "error", err)
		return err
	}
	c.changed(Idle, Running, clients)
	return nil
}

// OnClientDisconnect forgets a client. When none remain a stop check is
// scheduled after the grace period.
func (c *Controller) OnClientDisconnect() {
	c.mu.Lock()
	if c.clients > 0 {
		c.clients--
	}
	clients := c.clients
	c.mu.Unlock()

	c.logger.Info("Client disconnected", "clients", clients)
	if clients == 0 {
		c.schedule(c.grace, c.Tick)
	}
}

// Tick is the deferred stop check. It stops the graph only if no client
// is connected when it runs.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.clients != 0 || c.state != Running {
		c.mu.Unlock()
		return
	}
	err := c.stopLocked()
	clients := c.clients
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Failed to stop idle pipeline", "error", err)
	} else {
		c.logger.Info("No clients left, pipeline stopped")
	}
	c.changed(Running, Idle, clients)
}

// Start runs the graph if it is idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state == Running {
		c.mu.Unlock()
		return nil
	}
	err := c.startLocked()
	clients := c.clients
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.changed(Idle, Running, clients)
	return nil
}

// Stop halts the graph if it is running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return nil
	}
	err := c.stopLocked()
	clients := c.clients
	c.mu.Unlock()
	c.changed(Running, Idle, clients)
	return err
}

// Reset marks the controller idle without stopping the graph, for graphs
// that already exited on their own. The next client starts it again.
func (c *Controller) Reset() {
	c.mu.Lock()
	old := c.state
	c.state = Idle
	clients := c.clients
	c.mu.Unlock()
	if old == Running {
		c.changed(Running, Idle, clients)
	}
}

// Snapshot returns the current state and client count.
func (c *Controller) Snapshot() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.clients
}

func (c *Controller) startLocked() error {
	if err := c.graph.Start(); err != nil {
		return err
	}
	c.state = Running
	return nil
}

// stopLocked always leaves the controller idle; a failed stop is reported
// but the graph is treated as gone.
func (c *Controller) stopLocked() error {
	c.state = Idle
	return c.graph.Stop()
}

func (c *Controller) changed(old, new State, clients int) {
	if c.onChange != nil && old != new {
		c.onChange(old, new, clients)
	}
}
