package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/owlcms/clickrec/internal/logging"
)

// Config is the contents of config.toml.
type Config struct {
	Verbose   bool            `toml:"verbose"`
	Camera    CameraConfig    `toml:"camera"`
	Recording RecordingConfig `toml:"recording"`
	Encoder   EncoderConfig   `toml:"encoder"`
}

type CameraConfig struct {
	Device      string `toml:"device"`      // device index, path or URL
	Backend     string `toml:"backend"`     // any, dshow, v4l2, msmf
	Width       int    `toml:"width"`       // requested capture width in pixels
	Height      int    `toml:"height"`      // requested capture height in pixels
	FPS         int    `toml:"fps"`         // requested capture frame rate
	MJPEG       bool   `toml:"mjpeg"`       // ask the driver for MJPG frames
	OpenTimeout int    `toml:"openTimeout"` // seconds
}

type RecordingConfig struct {
	Duration  int    `toml:"duration"` // seconds
	Grayscale bool   `toml:"grayscale"`
	SaveDir   string `toml:"saveDir"`
	Extension string `toml:"extension"`
}

type EncoderConfig struct {
	FfmpegPath      string `toml:"ffmpegPath"`
	Codec           string `toml:"codec"` // "auto" probes PreferredCodec then uses FallbackCodec
	PreferredCodec  string `toml:"preferredCodec"`
	FallbackCodec   string `toml:"fallbackCodec"`
	Preset          string `toml:"preset"`
	Quality         int    `toml:"quality"` // -crf for libx264, -global_quality for qsv
	PixFmt          string `toml:"pixFmt"`
	LogFfmpeg       bool   `toml:"logFfmpeg"`
	FinalizeTimeout int    `toml:"finalizeTimeout"` // seconds
}

// Default returns the configuration used when config.toml sets nothing.
func Default() Config {
	backend := "any"
	switch runtime.GOOS {
	case "windows":
		backend = "dshow"
	case "linux":
		backend = "v4l2"
	}
	return Config{
		Camera: CameraConfig{
			Device:      "0",
			Backend:     backend,
			Width:       1280,
			Height:      720,
			FPS:         30,
			MJPEG:       true,
			OpenTimeout: 10,
		},
		Recording: RecordingConfig{
			Duration:  60,
			SaveDir:   "recordings",
			Extension: ".mp4",
		},
		Encoder: EncoderConfig{
			Codec:           "auto",
			PreferredCodec:  "h264_qsv",
			FallbackCodec:   "libx264",
			Preset:          "medium",
			Quality:         23,
			PixFmt:          "yuv420p",
			FinalizeTimeout: 15,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("error reading %s: %w", path, err)
		}
		logging.InfoLogger.Printf("Loaded configuration from %s", path)
	} else {
		logging.WarningLogger.Printf("%s not found, using default configuration", path)
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if path := getenv("FFMPEG_PATH"); path != "" {
		c.Encoder.FfmpegPath = path
	}
	if camera := getenv("CLICKREC_CAMERA"); camera != "" {
		c.Camera.Device = camera
	}
	if dir := getenv("CLICKREC_SAVE_DIR"); dir != "" {
		c.Recording.SaveDir = dir
	}
}

// Validate rejects settings that cannot produce a recording.
func (c Config) Validate() error {
	var errs []error
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera fps %d must be positive", c.Camera.FPS))
	}
	if c.Camera.OpenTimeout < 0 {
		errs = append(errs, fmt.Errorf("camera openTimeout %d must not be negative", c.Camera.OpenTimeout))
	}
	if c.Recording.Duration <= 0 {
		errs = append(errs, fmt.Errorf("recording duration %d must be positive", c.Recording.Duration))
	}
	if !strings.EqualFold(c.Recording.Extension, ".mp4") {
		errs = append(errs, fmt.Errorf("unsupported extension %q, only .mp4 is written", c.Recording.Extension))
	}
	if c.Encoder.Codec == "" {
		errs = append(errs, errors.New("encoder codec is empty"))
	}
	if c.Encoder.Codec == "auto" && c.Encoder.FallbackCodec == "" {
		errs = append(errs, errors.New("encoder fallbackCodec is required with codec = \"auto\""))
	}
	return errors.Join(errs...)
}

// OpenTimeoutDuration is the bounded wait applied when opening the camera.
func (c CameraConfig) OpenTimeoutDuration() time.Duration {
	return time.Duration(c.OpenTimeout) * time.Second
}

// FinalizeTimeoutDuration bounds how long ffmpeg may take to write the file trailer.
func (c EncoderConfig) FinalizeTimeoutDuration() time.Duration {
	return time.Duration(c.FinalizeTimeout) * time.Second
}

// SaveDirAbs resolves the save directory against the working directory.
func (c RecordingConfig) SaveDirAbs() string {
	if abs, err := filepath.Abs(c.SaveDir); err == nil {
		return abs
	}
	return c.SaveDir
}
