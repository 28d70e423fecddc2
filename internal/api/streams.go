package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/teecast/internal/api/models"
	"github.com/smazurov/teecast/internal/endpoints"
)

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List RTSP endpoints with URLs, internal address and group",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.StreamListResponse, error) {
		list := make([]models.StreamData, 0)
		if s.options.Status != nil {
			for _, e := range s.options.Status.Endpoints() {
				list = append(list, s.streamData(e))
			}
		}
		return &models.StreamListResponse{
			Body: models.StreamListData{Streams: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-lifecycle",
		Method:      http.MethodGet,
		Path:        "/api/lifecycle",
		Summary:     "Lifecycle",
		Description: "Pipeline state and client count per controller",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.LifecycleResponse, error) {
		list := make([]models.LifecycleData, 0)
		if s.options.Status != nil {
			for _, l := range s.options.Status.Lifecycle() {
				list = append(list, models.LifecycleData{
					Pipeline: l.Pipeline,
					State:    l.State.String(),
					Clients:  l.Clients,
					OnDemand: l.OnDemand,
				})
			}
		}
		return &models.LifecycleResponse{Body: models.LifecycleListData{Pipelines: list}}, nil
	})
}

func (s *Server) streamData(e *endpoints.Endpoint) models.StreamData {
	hosts := s.options.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	urls := make([]string, len(hosts))
	for i, h := range hosts {
		urls[i] = e.URL(h)
	}
	return models.StreamData{
		Name:     e.Name,
		Port:     e.Port,
		Mount:    e.Mount,
		URLs:     urls,
		Internal: e.Source.String(),
		Group:    e.Group,
		Codec:    strings.ToUpper(e.Payload.Name),
		Clients:  s.options.Status.Clients(e.Port, e.Mount),
	}
}
