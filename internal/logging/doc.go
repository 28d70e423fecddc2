// Package logging provides structured logging with per-module log levels.
//
// Output goes to stdout (text or JSON) and, when journald is listening,
// to the systemd journal under the identifier "teecast".
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"gst":       "warn",
//			"lifecycle": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("streaming")
//	logger.Info("Listener started", "port", 8554)
//
// Loggers obtained before Initialize pick up the new levels and format,
// since every module logger writes through the current shared sink.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	gst = "warn"
//
// Viewing logs under systemd:
//
//	journalctl -t teecast -f
//	journalctl -t teecast MODULE=lifecycle
package logging
