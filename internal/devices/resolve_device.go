package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var videoNode = regexp.MustCompile(`^video\d+$`)

// ResolveDevicePath turns a configured device into a node path. Paths are
// kept, a bare "videoN" means /dev/videoN, and udev names such as
// "usb-Logitech_C920-video-index0" are looked up under /dev/v4l.
func ResolveDevicePath(device string) (string, error) {
	return resolveDevicePath(device, "/dev/v4l")
}

func resolveDevicePath(device, v4lDir string) (string, error) {
	switch {
	case strings.HasPrefix(device, "/"):
		return device, nil
	case videoNode.MatchString(device):
		return "/dev/" + device, nil
	}

	var dirs []string
	switch {
	case strings.HasPrefix(device, "usb-"):
		dirs = []string{"by-id", "by-path"}
	case strings.HasPrefix(device, "platform-"), strings.HasPrefix(device, "pci-"):
		dirs = []string{"by-path"}
	}
	for _, dir := range dirs {
		candidate := filepath.Join(v4lDir, dir, device)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("device %q not found under %s", device, v4lDir)
}
