package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/pipeline"
	"github.com/smazurov/teecast/internal/supervisor"
)

// CreateValidateCmd creates the validate command. It checks a fan-out
// config without touching any device.
func CreateValidateCmd(settings func() Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate CONFIG",
		Short: "Validate a fan-out stream config",
		Long: `Loads the config, groups streams by output size, builds the pipeline and checks every ` +
			`mount against it. Prints the groups, one pipeline branch per line and the internal addresses.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := logging.GetLogger("config")

			cfg, err := config.LoadStreams(args[0])
			if err != nil {
				logger.Error("Invalid config", "config", args[0], "error", err)
				os.Exit(1)
			}
			layout, err := supervisor.PrepareFanout(context.Background(), cfg, settings().BasePort, nil, logger)
			if err != nil {
				logger.Error("Invalid config", "config", args[0], "reason", FailureReason(err), "error", err)
				os.Exit(1)
			}
			writeReport(cmd.OutOrStdout(), layout)
		},
	}
}

func writeReport(w io.Writer, layout *supervisor.Layout) {
	fmt.Fprintln(w, "Encoder groups:")
	for _, line := range supervisor.GroupSummary(layout.Plan) {
		fmt.Fprintf(w, "  %s\n", line)
	}

	fmt.Fprintln(w, "Pipeline:")
	for _, branch := range pipeline.Branches(layout.Graph) {
		fmt.Fprintf(w, "  %s\n", branch)
	}

	fmt.Fprintln(w, "Streams:")
	for _, e := range layout.Registry.Endpoints() {
		fmt.Fprintf(w, "  %s: %s -> %s\n", e.Name, e.Source.String(), e.URL("localhost"))
	}
}
