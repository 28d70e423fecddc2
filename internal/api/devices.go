package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/teecast/internal/api/models"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List V4L2 capture devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		cameras, err := s.options.Cameras.ListCameras(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("no capture devices", err)
		}
		list := make([]models.DeviceData, len(cameras))
		for i, c := range cameras {
			list[i] = models.DeviceData{
				Path:    c.Path,
				Name:    c.Name,
				ID:      c.ID,
				Driver:  c.Driver,
				BusInfo: c.BusInfo,
			}
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: list, Count: len(list)},
		}, nil
	})
}
