package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/logging"
)

// GenerateConfigCmd writes a sample config to FILE, or to stdout.
var GenerateConfigCmd = &cobra.Command{
	Use:   "generate-config [FILE]",
	Short: "Write a sample stream config",
	Long:  `Writes the multi-camera sample config, or with --fanout the single-camera fan-out sample.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := logging.GetLogger("config")
		fanout, _ := cmd.Flags().GetBool("fanout")

		var sample any = config.SampleMulti()
		if fanout {
			sample = config.SampleFanout()
		}
		data, err := config.MarshalSample(sample)
		if err != nil {
			logger.Error("Failed to render sample", "error", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			_, _ = cmd.OutOrStdout().Write(data)
			return
		}
		if err := config.WriteSample(args[0], data); err != nil {
			logger.Error("Failed to write sample", "path", args[0], "error", err)
			os.Exit(1)
		}
		logger.Info("Sample config written", "path", args[0])
	},
}

func init() {
	GenerateConfigCmd.Flags().Bool("fanout", false, "Write the fan-out sample instead of the multi-camera one")
}
