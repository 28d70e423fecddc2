// Package resolution picks the native capture mode that best fits a
// requested output size and frame rate.
package resolution

import "fmt"

// Resolution is one capture mode a device reports.
type Resolution struct {
	Width  int
	Height int
	MaxFPS float64
}

// Pixels returns Width*Height.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d@%g", r.Width, r.Height, r.MaxFPS)
}

// Dedupe collapses duplicate sizes, keeping the highest frame rate per size.
// Output order follows the first occurrence of each size.
func Dedupe(candidates []Resolution) []Resolution {
	type key struct{ w, h int }
	index := make(map[key]int, len(candidates))
	out := make([]Resolution, 0, len(candidates))
	for _, c := range candidates {
		k := key{c.Width, c.Height}
		if i, ok := index[k]; ok {
			if c.MaxFPS > out[i].MaxFPS {
				out[i].MaxFPS = c.MaxFPS
			}
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return out
}

// Select returns the candidate closest to the target size. The frame rate
// filter is advisory: when no candidate reaches fps, every candidate is
// considered. Among candidates at least as large as the target the smallest
// wins; otherwise the largest smaller one. Equal pixel counts keep input order.
func Select(candidates []Resolution, width, height int, fps float64) (Resolution, bool) {
	working := Dedupe(candidates)
	if len(working) == 0 {
		return Resolution{}, false
	}

	valid := make([]Resolution, 0, len(working))
	for _, c := range working {
		if c.MaxFPS >= fps {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		valid = working
	}

	target := width * height
	up, down := -1, -1
	for i, c := range valid {
		p := c.Pixels()
		if p >= target {
			if up < 0 || p < valid[up].Pixels() {
				up = i
			}
			continue
		}
		if down < 0 || p > valid[down].Pixels() {
			down = i
		}
	}

	switch {
	case up >= 0:
		return valid[up], true
	case down >= 0:
		return valid[down], true
	}
	return valid[0], true
}

// EffectiveFramerate lowers target to what the chosen mode can deliver.
func EffectiveFramerate(chosen Resolution, target int) int {
	if chosen.MaxFPS > 0 && chosen.MaxFPS < float64(target) {
		fps := int(chosen.MaxFPS)
		if fps < 1 {
			fps = 1
		}
		return fps
	}
	return target
}
