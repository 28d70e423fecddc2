package devices

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

// V4L2CtlBinary is the v4l-utils query tool.
const V4L2CtlBinary = "v4l2-ctl"

var (
	formatLineRe = regexp.MustCompile(`^\[\d+\]:\s*'(\w+)'`)
	sizeLineRe   = regexp.MustCompile(`Size:\s*\w+\s+(\d+)x(\d+)`)
	fpsLineRe    = regexp.MustCompile(`\((\d+(?:\.\d+)?)\s*fps\)`)
)

// V4L2CtlProber parses `v4l2-ctl --list-formats-ext`.
type V4L2CtlProber struct {
	Run CommandRunner
}

// Name implements Prober.
func (p *V4L2CtlProber) Name() Strategy { return StrategyV4L2Ctl }

// Probe implements Prober. Modes of the pixel format matching format are
// preferred; when the device does not list it every mode is returned.
func (p *V4L2CtlProber) Probe(ctx context.Context, device string, format streams.InputFormat) ([]resolution.Resolution, error) {
	out, err := p.Run(ctx, V4L2CtlBinary, "--device", device, "--list-formats-ext")
	if err != nil {
		return nil, fmt.Errorf("%s --list-formats-ext: %w", V4L2CtlBinary, err)
	}

	byFormat, all := ParseFormatsExt(out)
	if modes, ok := byFormat[fourCCFor(format)]; ok && len(modes) > 0 {
		return modes, nil
	}
	return all, nil
}

// ParseFormatsExt extracts capture modes from `v4l2-ctl --list-formats-ext`
// output, keyed by fourcc and in listed order. The rate of a size is the
// highest interval listed under it, or 30 when none is.
func ParseFormatsExt(out []byte) (map[string][]resolution.Resolution, []resolution.Resolution) {
	byFormat := make(map[string][]resolution.Resolution)
	var all []resolution.Resolution

	current := ""
	var pending *resolution.Resolution
	flush := func() {
		if pending == nil {
			return
		}
		if pending.MaxFPS <= 0 {
			pending.MaxFPS = 30
		}
		byFormat[current] = append(byFormat[current], *pending)
		all = append(all, *pending)
		pending = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := formatLineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = m[1]
			continue
		}
		if m := sizeLineRe.FindStringSubmatch(line); m != nil {
			flush()
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			pending = &resolution.Resolution{Width: w, Height: h}
			continue
		}
		if m := fpsLineRe.FindStringSubmatch(line); m != nil && pending != nil {
			if fps, err := strconv.ParseFloat(m[1], 64); err == nil && fps > pending.MaxFPS {
				pending.MaxFPS = fps
			}
		}
	}
	flush()

	return byFormat, resolution.Dedupe(all)
}

// ParseInfo extracts the fields of `v4l2-ctl --info` as a map,
// e.g. "Card type" and "Driver name".
func ParseInfo(out []byte) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}
	return fields
}
