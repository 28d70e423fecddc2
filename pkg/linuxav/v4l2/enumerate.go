//go:build linux

package v4l2

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	sysfsVideoDir = "/sys/class/video4linux"
	byIDDir       = "/dev/v4l/by-id"
)

// Enumerate lists the capture nodes under /sys/class/video4linux. Nodes
// that cannot be queried, such as metadata nodes of UVC cameras, are
// skipped.
func Enumerate() ([]Node, error) {
	entries, err := os.ReadDir(sysfsVideoDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysfsVideoDir, err)
	}

	byID := stableNames(byIDDir)
	var nodes []Node
	for _, entry := range entries {
		node, err := queryPath("/dev/" + entry.Name())
		if err != nil {
			slog.Debug("Skipping video node", "path", "/dev/"+entry.Name(), "error", err)
			continue
		}
		if !node.Capture() {
			continue
		}
		index := sysfsIndex(filepath.Join(sysfsVideoDir, entry.Name(), "index"))
		node.StableID = stableID(node, entry.Name(), index, byID)
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func queryPath(path string) (Node, error) {
	dev, err := Open(path)
	if err != nil {
		return Node{}, err
	}
	defer dev.Close()
	return dev.Query()
}

// stableNames maps the kernel name of each /dev/v4l/by-id symlink target
// (video0) to the link names pointing at it.
func stableNames(dir string) map[string][]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := map[string][]string{}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		kernel := filepath.Base(target)
		out[kernel] = append(out[kernel], entry.Name())
	}
	return out
}

func stableID(node Node, kernel string, index int, byID map[string][]string) string {
	suffix := "-video-index" + strconv.Itoa(index)
	for _, name := range byID[kernel] {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	if strings.HasPrefix(node.Bus, "usb-") {
		return node.Bus + suffix
	}
	return "platform-" + node.Bus + suffix
}

func sysfsIndex(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return n
}
