package events

// Event type constants for kelindar/event.
const (
	TypeClient uint32 = iota + 1
	TypeEngine
	TypePipelineState
	TypeLifecycle
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ClientAction is what happened to an RTSP client session.
type ClientAction string

const (
	ClientConnected    ClientAction = "connected"
	ClientDisconnected ClientAction = "disconnected"
)

// ClientEvent reports a client starting or ending playback on a mount.
// Connects and disconnects share one event type so a subscriber sees them
// in publish order.
type ClientEvent struct {
	Action    ClientAction `json:"action" example:"connected" doc:"connected or disconnected"`
	Port      int          `json:"port" example:"8554" doc:"RTSP listener port"`
	Mount     string       `json:"mount" example:"/stream" doc:"Mount path"`
	Remote    string       `json:"remote" example:"192.168.1.20:50123" doc:"Client address"`
	Timestamp string       `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientEvent.
func (e ClientEvent) Type() uint32 { return TypeClient }

// EngineEventKind classifies a message from the media engine.
type EngineEventKind string

const (
	EngineError   EngineEventKind = "error"
	EngineEOS     EngineEventKind = "eos"
	EngineWarning EngineEventKind = "warning"
)

// EngineEvent is an asynchronous bus message from a running graph.
type EngineEvent struct {
	PipelineID string          `json:"pipeline_id" example:"fanout" doc:"Pipeline identifier"`
	Kind       EngineEventKind `json:"kind" example:"error" doc:"error, eos or warning"`
	Message    string          `json:"message" doc:"Engine message"`
	ExitCode   int             `json:"exit_code" doc:"Process exit code, if the engine exited"`
	Timestamp  string          `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for EngineEvent.
func (e EngineEvent) Type() uint32 { return TypeEngine }

// PipelineStateEvent reports an engine process state transition.
type PipelineStateEvent struct {
	PipelineID string `json:"pipeline_id" example:"fanout" doc:"Pipeline identifier"`
	OldState   string `json:"old_state" example:"starting" doc:"Previous state"`
	NewState   string `json:"new_state" example:"running" doc:"New state"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineStateEvent.
func (e PipelineStateEvent) Type() uint32 { return TypePipelineState }

// LifecycleEvent reports an on-demand controller transition.
type LifecycleEvent struct {
	PipelineID string `json:"pipeline_id" example:"fanout" doc:"Pipeline identifier"`
	State      string `json:"state" example:"running" doc:"idle or running"`
	Clients    int    `json:"clients" doc:"Connected clients"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LifecycleEvent.
func (e LifecycleEvent) Type() uint32 { return TypeLifecycle }

// ConfigReloadedEvent reports a stream config reload attempt.
type ConfigReloadedEvent struct {
	Path      string `json:"path" doc:"Config file path"`
	Error     string `json:"error,omitempty" doc:"Validation error, if the new config was rejected"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
