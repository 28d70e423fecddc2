package supervisor

import (
	"context"
	"log/slog"

	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/devices"
	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/streams"
)

// FanoutPipelineID identifies the single fan-out graph.
const FanoutPipelineID = "fanout"

// Layout is a fan-out runtime ready to serve: everything derived from one
// config, verified, but nothing bound or started yet.
type Layout struct {
	Plan        *streams.Plan
	Graph       *pipeline.Graph
	Description string
	Registry    *endpoints.Registry
	// Strategy is the probe strategy that produced the camera mode. It is
	// empty when the config named the camera resolution.
	Strategy devices.Strategy
}

// PrepareFanout plans cfg, probes the camera when its resolution is not
// configured, builds the graph and checks every mount's payload against it.
func PrepareFanout(ctx context.Context, cfg *config.StreamsConfig, base int, det Detector, logger *slog.Logger) (*Layout, error) {
	if logger == nil {
		logger = slog.Default()
	}
	plan, err := streams.NewPlan(cfg.Camera, cfg.Streams, base)
	if err != nil {
		return nil, err
	}
	warnMismatched(plan, logger)

	layout := &Layout{Plan: plan}
	if !plan.Camera.HasResolution() && det != nil {
		w, h := largestGroup(plan.Groups)
		m := det.AutoDetect(ctx, plan.Camera.Device, plan.Camera.InputFormat, w, h, plan.Camera.Framerate)
		plan.Camera.Width = m.Resolution.Width
		plan.Camera.Height = m.Resolution.Height
		plan.Camera.Framerate = m.Framerate
		layout.Strategy = m.Strategy
		logger.Info("Camera mode detected",
			"device", plan.Camera.Device,
			"mode", m.Resolution.String(),
			"framerate", m.Framerate,
			"strategy", m.Strategy)
	}

	g, err := pipeline.BuildFanout(plan.Camera, plan.Groups, plan.Addresses)
	if err != nil {
		return nil, err
	}
	reg, err := endpoints.FromPlan(plan)
	if err != nil {
		return nil, err
	}
	if err := reg.Verify(g); err != nil {
		return nil, err
	}

	layout.Graph = g
	layout.Description = pipeline.Render(g)
	layout.Registry = reg
	return layout, nil
}

func largestGroup(groups []streams.Group) (int, int) {
	var w, h int
	for _, g := range groups {
		if g.Width*g.Height > w*h {
			w, h = g.Width, g.Height
		}
	}
	return w, h
}

// warnMismatched logs members whose encode settings are overridden by the
// first member of their group.
func warnMismatched(plan *streams.Plan, logger *slog.Logger) {
	for _, g := range plan.Groups {
		first := plan.Streams[g.Members[0]]
		for _, m := range g.Mismatched {
			s := plan.Streams[m]
			logger.Warn("Stream shares an encoder and uses the group's settings",
				"stream", s.Name,
				"group", g.Key(),
				"leader", first.Name,
				"bitrate", g.Bitrate,
				"framerate", g.Framerate,
				"codec", g.Codec)
		}
	}
}
