package devices

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/smazurov/teecast/internal/resolution"
	"github.com/smazurov/teecast/internal/streams"
)

var (
	capsWidthRe    = regexp.MustCompile(`\bwidth=(?:\(int\))?(\d+)`)
	capsHeightRe   = regexp.MustCompile(`\bheight=(?:\(int\))?(\d+)`)
	capsFormatRe   = regexp.MustCompile(`\bformat=(?:\(string\))?(\w+)`)
	capsFractionRe = regexp.MustCompile(`(\d+)/(\d+)`)
)

// capsStructure is one fixed-size entry of a caps string.
type capsStructure struct {
	media  string
	format string
	mode   resolution.Resolution
}

// parseCaps splits serialized GStreamer caps into structures with a fixed
// width and height. Ranged sizes are skipped.
func parseCaps(caps string) []capsStructure {
	var out []capsStructure
	for _, entry := range strings.Split(caps, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		media, _, _ := strings.Cut(entry, ",")

		wm := capsWidthRe.FindStringSubmatch(entry)
		hm := capsHeightRe.FindStringSubmatch(entry)
		if wm == nil || hm == nil {
			continue
		}
		w, _ := strconv.Atoi(wm[1])
		h, _ := strconv.Atoi(hm[1])
		if w <= 0 || h <= 0 {
			continue
		}

		s := capsStructure{
			media: strings.TrimSpace(media),
			mode:  resolution.Resolution{Width: w, Height: h, MaxFPS: capsMaxFPS(entry)},
		}
		if fm := capsFormatRe.FindStringSubmatch(entry); fm != nil {
			s.format = fm[1]
		}
		out = append(out, s)
	}
	return out
}

// capsMaxFPS returns the fastest rate in a framerate field, 30 if absent.
func capsMaxFPS(entry string) float64 {
	_, rest, ok := strings.Cut(entry, "framerate=")
	if !ok {
		return 30
	}
	// the field ends at the next top-level key
	if i := strings.Index(rest, "="); i >= 0 {
		if j := strings.LastIndex(rest[:i], ","); j >= 0 {
			rest = rest[:j]
		}
	}

	best := 0.0
	for _, m := range capsFractionRe.FindAllStringSubmatch(rest, -1) {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den > 0 && num/den > best {
			best = num / den
		}
	}
	if best <= 0 {
		return 30
	}
	return best
}

// matchesInput reports whether a caps structure carries the given input format.
func (s capsStructure) matchesInput(format streams.InputFormat) bool {
	switch format {
	case streams.InputMJPEG:
		return s.media == "image/jpeg"
	case streams.InputH264:
		return s.media == "video/x-h264"
	case streams.InputNV12:
		return s.media == "video/x-raw" && s.format == "NV12"
	case streams.InputRaw:
		return s.media == "video/x-raw" && (s.format == "YUY2" || s.format == "")
	}
	return false
}

// capsModes picks the modes matching format, or all of them when none match.
func capsModes(caps string, format streams.InputFormat) []resolution.Resolution {
	structures := parseCaps(caps)
	var matched, all []resolution.Resolution
	for _, s := range structures {
		all = append(all, s.mode)
		if s.matchesInput(format) {
			matched = append(matched, s.mode)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return all
}
