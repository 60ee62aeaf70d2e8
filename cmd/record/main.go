package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/owlcms/clickrec/internal/app"
	"github.com/owlcms/clickrec/internal/camera"
	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/devices"
	"github.com/owlcms/clickrec/internal/jobutil"
	"github.com/owlcms/clickrec/internal/logging"
	"github.com/owlcms/clickrec/internal/recordings"
	"github.com/owlcms/clickrec/internal/session"
	"github.com/owlcms/clickrec/internal/status"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		cameraID   string
		mode       string
		seconds    int
		grayscale  bool
		output     string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "path to config.toml (default: in the install directory)")
	flag.StringVar(&cameraID, "camera", "", "camera index, device path or URL (default from config)")
	flag.StringVar(&mode, "mode", "", "capture mode WxH@fps, or best (default from config)")
	flag.IntVar(&seconds, "duration", 0, "clip length in seconds (default from config)")
	flag.BoolVar(&grayscale, "gray", false, "record in grayscale")
	flag.StringVar(&output, "o", "", "output .mp4 file (default: timestamped file in the save directory)")
	flag.BoolVar(&verbose, "v", false, "enable verbose logging")
	flag.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flag.Parse()

	cfg, err := config.InitConfig(configPath, verbose)
	if err != nil {
		logging.ErrorLogger.Printf("Invalid configuration: %v", err)
		return 2
	}
	defer logging.Close()

	if cameraID == "" {
		cameraID = cfg.Camera.Device
	}
	if seconds == 0 {
		seconds = cfg.Recording.Duration
	}
	grayscale = grayscale || cfg.Recording.Grayscale

	if err := jobutil.Init(); err != nil {
		logging.WarningLogger.Printf("Could not create job object: %v", err)
	}
	defer jobutil.Close()

	opener, err := camera.NewOpener(camera.OptionsFromConfig(cfg.Camera))
	if err != nil {
		logging.ErrorLogger.Printf("%v", err)
		return 2
	}
	ctx := context.Background()
	a, err := app.New(ctx, cfg, opener)
	if err != nil {
		logging.ErrorLogger.Printf("%v", err)
		return 1
	}

	if mode != "" {
		cam, ok := devices.Find(a.Cameras(ctx), cameraID)
		if !ok {
			cam = devices.Camera{Name: cameraID, ID: cameraID}
		}
		m, err := cam.ChooseMode(mode)
		if err != nil {
			logging.ErrorLogger.Printf("%v", err)
			return 2
		}
		logging.InfoLogger.Printf("Requesting capture mode %s", m)
		opener.SetMode(m.Width, m.Height, m.FPS)
	}

	req, err := a.Request(cameraID, seconds, grayscale)
	if err != nil {
		logging.ErrorLogger.Printf("%v", err)
		return 2
	}
	if output != "" {
		if err := recordings.ValidatePath(output); err != nil {
			logging.ErrorLogger.Printf("%v", err)
			return 2
		}
		req.OutputPath = output
	}

	go printStatus(a.Status)

	if err := a.Controller.StartPreview(ctx, cameraID); err != nil {
		logging.ErrorLogger.Printf("%v", err)
		return 1
	}
	if err := a.Controller.StartRecording(req); err != nil {
		logging.ErrorLogger.Printf("%v", err)
		a.Shutdown(ctx)
		if errors.Is(err, session.ErrInvalidDuration) {
			return 2
		}
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.InfoLogger.Println("Interrupt signal received. Cancelling recording...")
		a.Controller.Cancel()
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.Controller.Done():
			res, _ := a.Controller.Wait(ctx)
			return report(res)
		case <-ticker.C:
			if s := a.Controller.Session(); s.State == session.StateRecording {
				fmt.Printf("\r%s s remaining ", status.Countdown(s.Remaining()))
			}
		}
	}
}

func printStatus(c *status.Channel) {
	for msg := range c.C {
		if msg.Code == status.Recording || msg.Code == status.Previewing {
			logging.Trace("%s", msg.Text)
			continue
		}
		fmt.Printf("\r%s\n", msg.Text)
	}
}

func report(res session.Result) int {
	switch {
	case res.State == session.StateCompleted:
		fmt.Printf("%s: %d frames, %s\n", res.OutputPath, res.Frames, res.Elapsed.Round(time.Millisecond))
		return 0
	case res.Cancelled:
		fmt.Println("Recording cancelled, nothing saved.")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Recording failed: %v\n", res.Err)
		return 1
	}
}
