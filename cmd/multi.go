package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/teecast/internal/config"
	"github.com/smazurov/teecast/internal/logging"
	"github.com/smazurov/teecast/internal/supervisor"
)

// CreateMultiCmd creates the multi command: one independent pipeline per
// configured camera, all behind the same RTSP listeners.
func CreateMultiCmd(settings func() Settings) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "multi",
		Short: "Serve several cameras from a multi-camera config",
		Long: `Loads a multi-camera JSON config and runs one capture and encode pipeline per enabled stream. ` +
			`Streams that fail to build are skipped; pipelines that die are restarted.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("supervisor")

			cfg, err := config.LoadMulti(configFile)
			if err != nil {
				logger.Error("Failed to load multi-camera config", "config", configFile, "error", err)
				os.Exit(1)
			}
			for _, skipped := range cfg.Skipped {
				logger.Error("Skipping stream entry", "error", skipped)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = Serve(ctx, settings(), func(opts supervisor.Options) Service {
				return supervisor.NewMulti(opts, cfg)
			})
			if err != nil {
				logger.Error("Multi-camera runtime failed", "reason", FailureReason(err), "error", err)
				stop()
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "multi_camera.json", "Multi-camera config file")
	return cmd
}
