package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/smazurov/teecast/internal/events"
)

// outputMonitor watches gst-launch output for the messages that decide how
// a run ended.
type outputMonitor struct {
	id  string
	bus *events.Bus

	mu        sync.Mutex
	lastError string
	eos       bool
}

func newOutputMonitor(id string, bus *events.Bus) *outputMonitor {
	return &outputMonitor{id: id, bus: bus}
}

// HandleLine implements process.LineHandler.
func (m *outputMonitor) HandleLine(_, line string) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "ERROR: "):
		m.mu.Lock()
		// later errors are usually fallout from the first one
		if m.lastError == "" {
			m.lastError = strings.TrimPrefix(line, "ERROR: ")
		}
		m.mu.Unlock()
	case strings.HasPrefix(line, "WARNING: "):
		m.publish(events.EngineWarning, strings.TrimPrefix(line, "WARNING: "), 0)
	case strings.HasPrefix(line, "Got EOS from element"):
		m.mu.Lock()
		m.eos = true
		m.mu.Unlock()
	}
}

// Result returns the first error line and whether EOS was seen.
func (m *outputMonitor) Result() (lastError string, eos bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError, m.eos
}

func (m *outputMonitor) publish(kind events.EngineEventKind, message string, exitCode int) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.EngineEvent{
		PipelineID: m.id,
		Kind:       kind,
		Message:    message,
		ExitCode:   exitCode,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}
