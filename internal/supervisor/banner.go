package supervisor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/smazurov/teecast/internal/endpoints"
	"github.com/smazurov/teecast/internal/streams"
)

// logBanner logs the stream table: groups, then one line per endpoint with
// a URL per host. It returns a one-line summary for the unit status.
func logBanner(logger *slog.Logger, reg *endpoints.Registry, groups []streams.Group, hosts []string, onDemand bool) string {
	mode := "always-on"
	if onDemand {
		mode = "on-demand"
	}
	logger.Info("Serving streams", "endpoints", len(reg.Endpoints()), "encoders", len(groups), "mode", mode)

	for _, g := range groups {
		logger.Info("Encoder group", "size", g.Key(), "codec", g.Codec, "bitrate_kbps", g.Bitrate, "streams", len(g.Members))
	}
	for _, e := range reg.Endpoints() {
		logger.Info("Stream",
			"name", e.Name,
			"internal", e.Source.String(),
			"urls", strings.Join(urls(e, hosts), " "))
	}
	return fmt.Sprintf("%d streams, %d encoders, %s", len(reg.Endpoints()), len(groups), mode)
}

func urls(e *endpoints.Endpoint, hosts []string) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = e.URL(h)
	}
	return out
}

// GroupSummary renders "WxH: N streams (a, b)" for each group.
func GroupSummary(plan *streams.Plan) []string {
	lines := make([]string, len(plan.Groups))
	for i, g := range plan.Groups {
		names := make([]string, len(g.Members))
		for j, m := range g.Members {
			names[j] = plan.Streams[m].Name
		}
		noun := "streams"
		if len(names) == 1 {
			noun = "stream"
		}
		lines[i] = fmt.Sprintf("%s: %d %s (%s)", g.Key(), len(names), noun, strings.Join(names, ", "))
	}
	return lines
}
