// Package supervisor assembles and runs a streaming runtime: planning,
// camera probing, graph build, RTSP listeners and relays, the media engine
// and, in on-demand mode, the lifecycle controllers that start and stop it.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/teecast/internal/devices"
	"github.com/smazurov/teecast/internal/engine"
	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/lifecycle"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/streams"
)

// Detector picks a capture mode for a camera with no explicit resolution.
// devices.Chain satisfies it.
type Detector interface {
	AutoDetect(ctx context.Context, device string, format streams.InputFormat, width, height, fps int) devices.Match
}

// Notifier reports readiness to the service manager.
type Notifier interface {
	Ready()
	Stopping()
	Status(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Ready()        {}
func (nopNotifier) Stopping()     {}
func (nopNotifier) Status(string) {}

// Options are shared by every run mode.
type Options struct {
	// BasePort is the first internal relay port.
	BasePort int

	// GracePeriod is how long an on-demand pipeline outlives its last client.
	GracePeriod time.Duration

	// OnDemand forces on-demand mode even when the config does not ask for it.
	OnDemand bool

	// Engine runs the rendered graphs (required).
	Engine engine.Engine

	// Detector probes cameras without an explicit resolution. Nil uses the
	// default resolution.
	Detector Detector

	// Bus carries client and engine events. A private bus is created when nil.
	Bus *events.Bus

	Notifier Notifier

	// Hosts are printed in the startup banner as RTSP URL hosts.
	Hosts []string

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.BasePort <= 0 {
		o.BasePort = streams.DefaultBasePort
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = lifecycle.DefaultGracePeriod
	}
	if o.Bus == nil {
		o.Bus = events.New()
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if len(o.Hosts) == 0 {
		o.Hosts = []string{"localhost"}
	}
	if o.Logger == nil {
		o.Logger = logging.GetLogger("supervisor")
	}
	if o.Engine == nil {
		panic("supervisor: Options.Engine is required")
	}
}

func (o *Options) controller(pipelineID string, graph lifecycle.Graph) *lifecycle.Controller {
	bus := o.Bus
	return lifecycle.New(graph,
		lifecycle.WithGracePeriod(o.GracePeriod),
		lifecycle.WithLogger(logging.GetLogger("lifecycle").With("pipeline", pipelineID)),
		lifecycle.WithStateHook(func(_, state lifecycle.State, clients int) {
			bus.Publish(events.LifecycleEvent{
				PipelineID: pipelineID,
				State:      state.String(),
				Clients:    clients,
				Timestamp:  timestamp(),
			})
		}),
	)
}

// engineEvents subscribes to engine events, buffering them for a run loop.
// Events are dropped if the loop falls far behind.
func engineEvents(bus *events.Bus) (<-chan events.EngineEvent, func()) {
	ch := make(chan events.EngineEvent, 64)
	unsubscribe := bus.Subscribe(func(e events.EngineEvent) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch, unsubscribe
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
