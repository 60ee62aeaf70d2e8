package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/owlcms/clickrec/internal/logging"
)

const appName = "clickrec"

// GetInstallDir returns the per-user directory holding config.toml and logs.
func GetInstallDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, appName)
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appName)
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", appName)
		}
	}
	return "."
}

// InitConfig prepares the install directory, starts logging there and loads
// config.toml. An empty path means config.toml in the install directory, which
// is created from the embedded defaults when missing.
func InitConfig(path string, verbose bool) (Config, error) {
	dir := GetInstallDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Default(), err
	}
	if err := logging.Init(filepath.Join(dir, "logs")); err != nil {
		logging.WarningLogger.Printf("Logging to console only: %v", err)
	}

	if path == "" {
		path = filepath.Join(dir, "config.toml")
		if err := ExtractDefaultConfig(path); err != nil {
			logging.ErrorLogger.Printf("Failed to write default config: %v", err)
		}
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.Verbose = true
	}
	logging.SetVerbose(cfg.Verbose)
	logging.InfoLogger.Printf("clickrec %s, install directory %s", GetProgramVersion(), dir)
	return cfg, cfg.Validate()
}
