package lifecycle

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeGraph struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (g *fakeGraph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startErr != nil {
		return g.startErr
	}
	g.starts++
	return nil
}

func (g *fakeGraph) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	return nil
}

func (g *fakeGraph) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts, g.stops
}

// manualScheduler records scheduled checks so tests decide when they fire.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (s *manualScheduler) schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fn)
	s.delays = append(s.delays, d)
}

func (s *manualScheduler) fireAll() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(g Graph) (*Controller, *manualScheduler) {
	s := &manualScheduler{}
	c := New(g, WithScheduler(s.schedule), WithLogger(testLogger()))
	return c, s
}

func TestConnectDisconnectSequence(t *testing.T) {
	g := &fakeGraph{}
	c, s := newTestController(g)

	if err := c.OnClientConnect(); err != nil {
		t.Fatalf("OnClientConnect failed: %v", err)
	}
	if err := c.OnClientConnect(); err != nil {
		t.Fatalf("OnClientConnect failed: %v", err)
	}
	c.OnClientDisconnect()
	c.OnClientDisconnect()

	if starts, _ := g.counts(); starts != 1 {
		t.Errorf("Expected exactly one start, got %d", starts)
	}
	if len(s.pending) != 1 {
		t.Fatalf("Expected one scheduled stop check, got %d", len(s.pending))
	}
	if s.delays[0] != DefaultGracePeriod {
		t.Errorf("Expected grace period %v, got %v", DefaultGracePeriod, s.delays[0])
	}

	s.fireAll()
	if _, stops := g.counts(); stops != 1 {
		t.Errorf("Expected exactly one stop, got %d", stops)
	}
	if state, clients := c.Snapshot(); state != Idle || clients != 0 {
		t.Errorf("Expected idle with 0 clients, got %s with %d", state, clients)
	}
}

func TestReconnectWithinGracePreventsStop(t *testing.T) {
	g := &fakeGraph{}
	c, s := newTestController(g)

	_ = c.OnClientConnect()
	c.OnClientDisconnect()
	_ = c.OnClientConnect()
	s.fireAll()

	starts, stops := g.counts()
	if starts != 1 || stops != 0 {
		t.Errorf("Expected 1 start and 0 stops, got %d and %d", starts, stops)
	}
	if state, _ := c.Snapshot(); state != Running {
		t.Errorf("Expected running, got %s", state)
	}
}

func TestSpuriousTickIsHarmless(t *testing.T) {
	g := &fakeGraph{}
	c, _ := newTestController(g)

	c.Tick()
	_ = c.OnClientConnect()
	c.Tick()

	if _, stops := g.counts(); stops != 0 {
		t.Errorf("Expected no stop, got %d", stops)
	}
}

func TestDisconnectClampsAtZero(t *testing.T) {
	g := &fakeGraph{}
	c, s := newTestController(g)

	c.OnClientDisconnect()
	c.OnClientDisconnect()
	if _, clients := c.Snapshot(); clients != 0 {
		t.Errorf("Expected 0 clients, got %d", clients)
	}
	s.fireAll()

	// the next client still starts the graph
	_ = c.OnClientConnect()
	if starts, _ := g.counts(); starts != 1 {
		t.Errorf("Expected start after clamped disconnects, got %d", starts)
	}
}

func TestStartFailureStaysIdle(t *testing.T) {
	g := &fakeGraph{startErr: errors.New("engine rejected graph")}
	c, _ := newTestController(g)

	if err := c.OnClientConnect(); err == nil {
		t.Fatal("Expected start error to surface")
	}
	if state, clients := c.Snapshot(); state != Idle || clients != 1 {
		t.Errorf("Expected idle with 1 client, got %s with %d", state, clients)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	g := &fakeGraph{}
	c, _ := newTestController(g)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop on idle failed: %v", err)
	}
	_ = c.Start()
	_ = c.Start()
	_ = c.Stop()
	_ = c.Stop()

	starts, stops := g.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("Expected 1 start and 1 stop, got %d and %d", starts, stops)
	}
}

func TestResetAllowsRestart(t *testing.T) {
	g := &fakeGraph{}
	c, s := newTestController(g)

	_ = c.OnClientConnect()
	c.Reset()
	if state, _ := c.Snapshot(); state != Idle {
		t.Fatalf("Expected idle after reset, got %s", state)
	}
	c.OnClientDisconnect()
	s.fireAll()
	_ = c.OnClientConnect()

	starts, stops := g.counts()
	if starts != 2 || stops != 0 {
		t.Errorf("Expected 2 starts and 0 stops, got %d and %d", starts, stops)
	}
}

func TestStateHook(t *testing.T) {
	g := &fakeGraph{}
	var transitions []string
	s := &manualScheduler{}
	c := New(g,
		WithScheduler(s.schedule),
		WithLogger(testLogger()),
		WithStateHook(func(old, new State, clients int) {
			transitions = append(transitions, old.String()+"->"+new.String())
		}),
	)

	_ = c.OnClientConnect()
	c.OnClientDisconnect()
	s.fireAll()

	if len(transitions) != 2 || transitions[0] != "idle->running" || transitions[1] != "running->idle" {
		t.Errorf("Unexpected transitions %v", transitions)
	}
}

func TestConcurrentClients(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := &fakeGraph{}
	c := New(g, WithGracePeriod(10*time.Millisecond), WithLogger(testLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.OnClientConnect()
			c.OnClientDisconnect()
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := c.Snapshot(); state == Idle {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	state, clients := c.Snapshot()
	if state != Idle || clients != 0 {
		t.Errorf("Expected idle with 0 clients, got %s with %d", state, clients)
	}
	starts, stops := g.counts()
	if starts != stops {
		t.Errorf("Expected balanced starts and stops, got %d and %d", starts, stops)
	}
	// let pending timers drain
	time.Sleep(30 * time.Millisecond)
}
