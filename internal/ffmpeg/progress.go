package ffmpeg

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	frameRegex   = regexp.MustCompile(`frame=\s*([0-9]+)`)
	fpsRegex     = regexp.MustCompile(`fps=\s*([0-9.]+)`)
	bitrateRegex = regexp.MustCompile(`bitrate=\s*([^\s]+)`)
	speedRegex   = regexp.MustCompile(`speed=\s*([0-9.]+)x`)
)

// Progress is one status line printed by ffmpeg while encoding.
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Speed   float64
}

// ParseProgress extracts encoder statistics from a stderr line. It reports
// false for lines that are not progress lines.
func ParseProgress(line string) (Progress, bool) {
	if !strings.Contains(line, "frame=") && !strings.Contains(line, "fps=") {
		return Progress{}, false
	}
	var p Progress
	if v, ok := match(frameRegex, line); ok {
		p.Frame, _ = strconv.Atoi(v)
	}
	if v, ok := match(fpsRegex, line); ok {
		p.FPS, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := match(bitrateRegex, line); ok {
		p.Bitrate = v
	}
	if v, ok := match(speedRegex, line); ok {
		p.Speed, _ = strconv.ParseFloat(v, 64)
	}
	return p, true
}

// ScanStderr reads ffmpeg's stderr until EOF. Progress lines go to progress,
// every other non-empty line goes to other. Either callback may be nil.
func ScanStderr(r io.Reader, progress func(Progress), other func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if p, ok := ParseProgress(line); ok {
			if progress != nil {
				progress(p)
			}
		} else if other != nil {
			other(line)
		}
	}
}

// splitCRLF splits on both \r and \n; ffmpeg rewrites its status line with \r.
func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func match(re *regexp.Regexp, line string) (string, bool) {
	m := re.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
