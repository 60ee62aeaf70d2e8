package devices

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// ParseDshowDevices returns the video device names printed by
// `ffmpeg -f dshow -list_devices true -i dummy`.
func ParseDshowDevices(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "(video)") {
			continue
		}
		start := strings.Index(line, "\"")
		end := strings.LastIndex(line, "\"")
		if start != -1 && end != -1 && start != end {
			names = append(names, line[start+1:end])
		}
	}
	return names
}

var (
	// vcodec=mjpeg  min s=640x480 fps=5 max s=1920x1080 fps=30
	dshowMaxRe    = regexp.MustCompile(`max\s+s=(\d+)x(\d+)\s+fps=([0-9.]+)`)
	dshowSingleRe = regexp.MustCompile(`s=(\d+)x(\d+)\s+fps=([0-9.]+)`)
	dshowFmtRe    = regexp.MustCompile(`(?:pixel_format|vcodec)=(\w+)`)
)

// ParseDshowOptions returns the modes printed by
// `ffmpeg -f dshow -list_options true -i video=NAME`, using the max size and
// frame rate of each line.
func ParseDshowOptions(out string) []Mode {
	var modes []Mode
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		f := dshowFmtRe.FindStringSubmatch(line)
		if f == nil {
			continue
		}
		pixFmt := f[1]
		if pixFmt == "yuyv" {
			pixFmt = "yuyv422"
		}
		m := dshowMaxRe.FindStringSubmatch(line)
		if m == nil {
			m = dshowSingleRe.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		modes = append(modes, Mode{PixFmt: pixFmt, Width: w, Height: h, FPS: parseFps(m[3])})
	}
	return modes
}

// V4L2Device is one camera listed by `v4l2-ctl --list-devices`.
type V4L2Device struct {
	Name string
	Path string
}

// ParseV4L2Devices keeps the first /dev/videoN node of every camera group.
func ParseV4L2Devices(out string) []V4L2Device {
	var devices []V4L2Device
	var current string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") && !strings.HasPrefix(line, " ") {
			if idx := strings.Index(line, " ("); idx != -1 {
				current = strings.TrimSpace(line[:idx])
			} else {
				current = strings.TrimRight(strings.TrimSpace(line), ":")
			}
			continue
		}
		path := strings.TrimSpace(line)
		if strings.HasPrefix(path, "/dev/video") && current != "" {
			devices = append(devices, V4L2Device{Name: current, Path: path})
			current = ""
		}
	}
	return devices
}

var (
	v4l2FmtRe  = regexp.MustCompile(`'(MJPG|YUYV|H264|NV12|RGB3|BGR3|UYVY)'`)
	v4l2SizeRe = regexp.MustCompile(`Size:\s+Discrete\s+(\d+)x(\d+)`)
	v4l2FpsRe  = regexp.MustCompile(`\(([0-9.]+)\s+fps\)`)
)

var v4l2PixFmts = map[string]string{
	"MJPG": "mjpeg",
	"H264": "h264",
	"YUYV": "yuyv422",
	"NV12": "nv12",
	"RGB3": "rgb24",
	"BGR3": "bgr24",
	"UYVY": "uyvy422",
}

// ParseV4L2Formats returns the modes printed by `v4l2-ctl --list-formats-ext`,
// keeping the highest frame rate of each format and size.
func ParseV4L2Formats(out string) []Mode {
	var modes []Mode
	var pixFmt string
	var width, height int

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if m := v4l2FmtRe.FindStringSubmatch(line); m != nil {
			pixFmt = v4l2PixFmts[m[1]]
			width, height = 0, 0
			continue
		}
		if m := v4l2SizeRe.FindStringSubmatch(line); m != nil {
			width, _ = strconv.Atoi(m[1])
			height, _ = strconv.Atoi(m[2])
			continue
		}
		m := v4l2FpsRe.FindStringSubmatch(line)
		if m == nil || pixFmt == "" || width == 0 {
			continue
		}
		fps := parseFps(m[1])
		found := false
		for i := range modes {
			if modes[i].PixFmt == pixFmt && modes[i].Width == width && modes[i].Height == height {
				if fps > modes[i].FPS {
					modes[i].FPS = fps
				}
				found = true
				break
			}
		}
		if !found {
			modes = append(modes, Mode{PixFmt: pixFmt, Width: width, Height: height, FPS: fps})
		}
	}
	return modes
}
