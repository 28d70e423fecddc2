package engine

import "strings"

// ParseLogLevel extracts the log level from gst-launch-1.0 output.
// gst-launch prints "ERROR: ..." and "WARNING: ..." for bus messages, and
// GST_DEBUG output looks like
// "0:00:01.234 4321 0x55d5 WARN v4l2src gstv4l2src.c:123:func:<v4l2src0> msg".
// Returns the level and the message with the level stripped.
func ParseLogLevel(line string) (level, msg string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "info", ""
	case strings.HasPrefix(line, "ERROR: "):
		return "error", strings.TrimPrefix(line, "ERROR: ")
	case strings.HasPrefix(line, "WARNING: "):
		return "warning", strings.TrimPrefix(line, "WARNING: ")
	case strings.HasPrefix(line, "Additional debug info:"):
		return "debug", line
	}

	if level, msg, ok := parseDebugLine(line); ok {
		return level, msg
	}
	return "info", line
}

// parseDebugLine handles GST_DEBUG formatted lines.
func parseDebugLine(line string) (level, msg string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || !isTimestamp(fields[0]) {
		return "", "", false
	}
	level, ok = debugLevel(fields[3])
	if !ok {
		return "", "", false
	}
	return level, strings.Join(fields[4:], " "), true
}

// isTimestamp matches the H:MM:SS.nnnnnnnnn prefix of GST_DEBUG lines.
func isTimestamp(s string) bool {
	if len(s) < 7 || s[0] < '0' || s[0] > '9' {
		return false
	}
	return strings.Count(s, ":") == 2 && strings.Contains(s, ".")
}

func debugLevel(s string) (string, bool) {
	switch s {
	case "ERROR":
		return "error", true
	case "WARN", "FIXME":
		return "warning", true
	case "INFO":
		return "info", true
	case "DEBUG", "LOG", "TRACE", "MEMDUMP":
		return "debug", true
	}
	return "", false
}
