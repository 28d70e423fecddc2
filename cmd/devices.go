package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/teecast/internal/devices"
	"github.com/smazurov/teecast/internal/logging"
)

const queryTimeout = 10 * time.Second

// CreateListCamerasCmd creates the list-cameras command.
func CreateListCamerasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-cameras",
		Short: "List V4L2 capture devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()

			cameras, err := devices.NewLister().ListCameras(ctx)
			if err != nil {
				logging.GetLogger("devices").Error("No cameras found", "error", err)
				cancel()
				os.Exit(1)
			}
			printCameras(cmd, cameras)
		},
	}
}

func printCameras(cmd *cobra.Command, cameras []devices.Camera) {
	out := cmd.OutOrStdout()
	for _, c := range cameras {
		fmt.Fprintf(out, "%s\t%s", c.Path, c.Name)
		if c.Driver != "" {
			fmt.Fprintf(out, "\t%s", c.Driver)
		}
		if c.BusInfo != "" {
			fmt.Fprintf(out, "\t%s", c.BusInfo)
		}
		fmt.Fprintln(out)
	}
}

// CreateListFormatsCmd creates the list-formats command.
func CreateListFormatsCmd() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "list-formats",
		Short: "Show the capture formats of a device",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()

			path, err := devices.ResolveDevicePath(device)
			if err != nil {
				path = device
			}
			formats, err := devices.NewLister().ListFormats(ctx, path)
			if err != nil {
				logging.GetLogger("devices").Error("Failed to query formats", "device", path, "error", err)
				cancel()
				os.Exit(1)
			}
			fmt.Fprint(cmd.OutOrStdout(), formats)
		},
	}

	cmd.Flags().StringVar(&device, "device", "/dev/video0", "Capture device path or by-id name")
	return cmd
}
