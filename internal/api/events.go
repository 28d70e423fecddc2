package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/teecast/internal/events"
)

// subscribeToChannel forwards events of type T to ch, dropping when the
// client falls behind.
func subscribeToChannel[T events.Event](bus *events.Bus, ch chan<- any) func() {
	return events.Subscribe(bus, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// registerSSERoutes registers the event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Client sessions, pipeline state, engine messages and config reloads",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"client":         events.ClientEvent{},
		"engine":         events.EngineEvent{},
		"pipeline-state": events.PipelineStateEvent{},
		"lifecycle":      events.LifecycleEvent{},
		"config":         events.ConfigReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)
		bus := s.options.Bus

		unsubscribers := []func(){
			subscribeToChannel[events.ClientEvent](bus, eventCh),
			subscribeToChannel[events.EngineEvent](bus, eventCh),
			subscribeToChannel[events.PipelineStateEvent](bus, eventCh),
			subscribeToChannel[events.LifecycleEvent](bus, eventCh),
			subscribeToChannel[events.ConfigReloadedEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
