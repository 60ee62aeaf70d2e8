// Package app wires the camera, encoder and session controller from the
// configuration. Both the desktop and the command line recorder use it.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/devices"
	"github.com/owlcms/clickrec/internal/encoder"
	"github.com/owlcms/clickrec/internal/ffmpeg"
	"github.com/owlcms/clickrec/internal/logging"
	"github.com/owlcms/clickrec/internal/recordings"
	"github.com/owlcms/clickrec/internal/session"
	"github.com/owlcms/clickrec/internal/status"
)

// App owns one controller and the parts it was built from.
type App struct {
	Config     config.Config
	FfmpegPath string
	Codec      string
	Encoder    *encoder.Encoder
	Controller *session.Controller
	Status     *status.Channel
	now        func() time.Time
}

// New locates ffmpeg, picks the codec and builds a controller reading frames
// from source. Extra session options are applied after the ones New installs.
func New(ctx context.Context, cfg config.Config, source session.Source, opts ...session.Option) (*App, error) {
	ffmpegPath, err := ffmpeg.Locate(cfg.Encoder.FfmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: set FFMPEG_PATH or encoder.ffmpegPath", err)
	}
	logging.InfoLogger.Printf("FFmpeg executable set to: %s", ffmpegPath)

	codec := encoder.NewProber(ffmpegPath).ResolveCodec(ctx, cfg.Encoder.Codec, cfg.Encoder.PreferredCodec, cfg.Encoder.FallbackCodec)
	logging.InfoLogger.Printf("Using video codec %s", codec)

	return build(cfg, ffmpegPath, codec, source, opts...), nil
}

func build(cfg config.Config, ffmpegPath, codec string, source session.Source, opts ...session.Option) *App {
	enc := encoder.New(encoder.Settings{
		FfmpegPath:      ffmpegPath,
		Codec:           codec,
		Preset:          cfg.Encoder.Preset,
		Quality:         cfg.Encoder.Quality,
		PixFmt:          cfg.Encoder.PixFmt,
		LogFfmpeg:       cfg.Encoder.LogFfmpeg,
		LogDir:          filepath.Join(config.GetInstallDir(), "logs"),
		FinalizeTimeout: cfg.Encoder.FinalizeTimeoutDuration(),
	})
	a := &App{
		Config:     cfg,
		FfmpegPath: ffmpegPath,
		Codec:      codec,
		Encoder:    enc,
		Status:     status.NewChannel(16),
		now:        time.Now,
	}
	base := []session.Option{
		session.WithOpenTimeout(cfg.Camera.OpenTimeoutDuration()),
		session.WithListener(a.Status.Listener(func() string {
			return a.Controller.Session().Request.OutputPath
		})),
	}
	a.Controller = session.New(source, enc, append(base, opts...)...)
	return a
}

// Cameras lists the attached cameras.
func (a *App) Cameras(ctx context.Context) []devices.Camera {
	return devices.NewDetector(a.FfmpegPath).Detect(ctx)
}

// Request builds a recording request writing a timestamped clip to the save
// directory.
func (a *App) Request(cameraID string, seconds int, grayscale bool) (session.Request, error) {
	path, err := recordings.NewOutputPath(a.Config.Recording.SaveDir, a.Config.Recording.Extension, a.now())
	if err != nil {
		return session.Request{}, err
	}
	return session.Request{
		CameraID:   cameraID,
		Duration:   session.DurationFromSeconds(seconds),
		Grayscale:  grayscale,
		OutputPath: path,
	}, nil
}

// Shutdown cancels whatever is running and waits for the camera and encoder
// to be released.
func (a *App) Shutdown(ctx context.Context) (session.Result, error) {
	a.Controller.Cancel()
	return a.Controller.Wait(ctx)
}
