package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/devices"
	"github.com/owlcms/clickrec/internal/encoder"
	"github.com/owlcms/clickrec/internal/ffmpeg"
	"github.com/owlcms/clickrec/internal/logging"
)

var (
	includeAll bool
	probe      bool
	configPath string
)

func main() {
	flag.BoolVar(&includeAll, "all", false, "List every capture mode, not only the distinct MJPEG resolutions")
	flag.BoolVar(&probe, "probe", false, "Test-encode with every H.264 encoder ffmpeg reports")
	flag.StringVar(&configPath, "config", "", "config.toml to read ffmpegPath from")
	flag.Parse()

	// Initialize logging to current directory
	if err := logging.InitWithFile(".", "devices.log"); err != nil {
		fmt.Printf("Warning: Failed to initialize logging: %v\n", err)
	} else if wd, err := os.Getwd(); err == nil {
		fmt.Printf("Writing logs to: %s\n", filepath.Join(wd, "devices.log"))
	}
	defer logging.Close()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}

	ffmpegPath, err := ffmpeg.Locate(cfg.Encoder.FfmpegPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("FFmpeg: %s\n\n", ffmpegPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range devices.NewDetector(ffmpegPath).Detect(ctx) {
		fmt.Fprintf(w, "%s\tid=%s\tbackend=%s\n", c.Label(), c.ID, c.Backend)
		if len(c.Modes) == 0 {
			fmt.Fprintf(w, "\t(modes not reported)\n")
			continue
		}
		modes := devices.Resolutions(c.Modes)
		if includeAll {
			modes = c.Modes
		}
		best := c.Best()
		for _, m := range modes {
			mark := ""
			if m == best {
				mark = "*"
			}
			fmt.Fprintf(w, "\t%s\t%s\t%s\n", m.String(), m.PixFmt, mark)
		}
	}
	w.Flush()

	prober := encoder.NewProber(ffmpegPath)
	names, err := prober.Encoders(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nCould not list encoders: %v\n", err)
		os.Exit(1)
	}
	h264 := encoder.H264(names)
	fmt.Printf("\nH.264 encoders: %s\n", strings.Join(h264, ", "))
	if probe {
		for _, name := range h264 {
			result := "failed"
			if prober.Works(ctx, name) {
				result = "ok"
			}
			fmt.Printf("  %-16s %s\n", name, result)
		}
	}
	fmt.Printf("Selected: %s\n", prober.ResolveCodec(ctx, cfg.Encoder.Codec, cfg.Encoder.PreferredCodec, cfg.Encoder.FallbackCodec))
}
