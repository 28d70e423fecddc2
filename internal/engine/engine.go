// Package engine runs rendered pipeline descriptions.
//
// The default engine launches one gst-launch-1.0 subprocess per pipeline
// through a process pool. Builds with the gst tag can run pipelines in
// process through go-gst instead. Both report asynchronous errors and end
// of stream on the event bus as events.EngineEvent.
package engine

import (
	"log/slog"
	"time"

	"github.com/smazurov/teecast/internal/events"
)

// DefaultBinary is the gst-launch executable used when none is configured.
const DefaultBinary = "gst-launch-1.0"

// Pipeline is one registered graph description. It satisfies
// lifecycle.Graph.
type Pipeline interface {
	ID() string
	Start() error
	Stop() error
	Running() bool
}

// Engine runs graph descriptions by ID.
type Engine interface {
	// Register stores description under id, replacing any previous one.
	// The pipeline is not started.
	Register(id, description string) Pipeline

	// Close stops every pipeline and releases the engine.
	Close()
}

// Options configures an Engine.
type Options struct {
	// Binary is the gst-launch executable. Defaults to DefaultBinary.
	Binary string

	// InProcess selects the go-gst engine. Requires the gst build tag.
	InProcess bool

	// Bus receives engine and pipeline state events. May be nil.
	Bus *events.Bus

	// GracefulTimeout bounds how long a stopping pipeline gets to flush
	// EOS before it is killed. Zero keeps the process default.
	GracefulTimeout time.Duration

	Logger *slog.Logger
}

// New creates the engine selected by opts.
func New(opts Options) (Engine, error) {
	if opts.InProcess {
		return newInProcess(opts)
	}
	return NewLauncher(opts), nil
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
