package devices

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Mode is one capture format a camera offers.
type Mode struct {
	PixFmt string
	Width  int
	Height int
	FPS    int
}

// String formats the mode as WxH@Nfps.
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%dfps", m.Width, m.Height, m.FPS)
}

// Size formats the resolution as WxH.
func (m Mode) Size() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

var modeRe = regexp.MustCompile(`^\s*(\d+)x(\d+)@(\d+)(?:fps)?\s*$`)

// ParseMode parses a WxH@Nfps string. The pixel format is left empty.
func ParseMode(s string) (Mode, error) {
	m := modeRe.FindStringSubmatch(s)
	if m == nil {
		return Mode{}, fmt.Errorf("invalid mode %q, want WxH@Nfps", s)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	fps, _ := strconv.Atoi(m[3])
	if w <= 0 || h <= 0 || fps <= 0 {
		return Mode{}, fmt.Errorf("invalid mode %q, values must be positive", s)
	}
	return Mode{Width: w, Height: h, FPS: fps}, nil
}

// Resolutions returns the distinct MJPEG modes, largest first. Cameras that
// report no MJPEG mode fall back to all their modes.
func Resolutions(modes []Mode) []Mode {
	var out []Mode
	for _, m := range modes {
		if m.PixFmt == "mjpeg" {
			out = appendUnique(out, m)
		}
	}
	if len(out) == 0 {
		for _, m := range modes {
			out = appendUnique(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Width*out[i].Height, out[j].Width*out[j].Height
		if a != b {
			return a > b
		}
		return out[i].FPS > out[j].FPS
	})
	return out
}

func appendUnique(modes []Mode, m Mode) []Mode {
	for _, x := range modes {
		if x.Width == m.Width && x.Height == m.Height && x.FPS == m.FPS {
			return modes
		}
	}
	return append(modes, Mode{PixFmt: m.PixFmt, Width: m.Width, Height: m.Height, FPS: m.FPS})
}

// PickBest selects the preferred mode no larger than 1920x1080: compressed
// formats first, then 60 fps over 30 fps at 1080p and 720p, then frame rate,
// then pixel count.
func PickBest(modes []Mode) Mode {
	if len(modes) == 0 {
		return Mode{PixFmt: "unknown", Width: 1280, Height: 720, FPS: 30}
	}

	const maxWidth, maxHeight = 1920, 1080
	var candidates []Mode
	for _, m := range modes {
		if m.Width <= maxWidth && m.Height <= maxHeight {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		candidates = modes
	}

	best := candidates[0]
	for _, m := range candidates[1:] {
		if preferredOver(m, best) {
			best = m
		}
	}
	return best
}

func preferredOver(candidate, current Mode) bool {
	if a, b := formatPriority(candidate.PixFmt), formatPriority(current.PixFmt); a != b {
		return a > b
	}
	if a, b := profilePriority(candidate), profilePriority(current); a != b {
		return a > b
	}
	if candidate.FPS != current.FPS {
		return candidate.FPS > current.FPS
	}
	return candidate.Width*candidate.Height > current.Width*current.Height
}

// formatPriority favors MJPEG, which OpenCV decodes cheaply and which allows
// high frame rates over USB 2.
func formatPriority(pixFmt string) int {
	switch pixFmt {
	case "mjpeg":
		return 2
	default:
		return 1
	}
}

func profilePriority(m Mode) int {
	fullHD := m.Width == 1920 && m.Height == 1080
	hd := m.Width == 1280 && m.Height == 720
	switch {
	case fullHD && m.FPS >= 59:
		return 4
	case hd && m.FPS >= 59:
		return 3
	case fullHD && m.FPS >= 29:
		return 2
	case hd && m.FPS >= 29:
		return 1
	default:
		return 0
	}
}

// parseFps rounds NTSC style rates such as 29.97 or 60.0002.
func parseFps(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f + 0.5)
}
