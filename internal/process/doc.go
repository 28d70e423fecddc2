// Package process runs gst-launch and similar subprocesses.
//
// A Process owns one child: it spawns synchronously, so a missing binary
// is an error from Start, streams stdout and stderr line by line, and on
// cancellation sends SIGINT to the process group before escalating to
// SIGKILL.
//
// A Pool keys processes by ID and runs at most one per ID:
//
//	pool, err := process.NewPool(process.PoolOptions{
//	    Command: func(id string) (process.Command, error) {
//	        return process.Command{Path: "gst-launch-1.0", Args: []string{"-e", "videotestsrc", "!", "fakesink"}}, nil
//	    },
//	    OnStateChange: func(c process.StateChange) {
//	        slog.Info("pipeline state", "id", c.ID, "old", c.Old, "new", c.New)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//	err = pool.Start("fanout")
package process
