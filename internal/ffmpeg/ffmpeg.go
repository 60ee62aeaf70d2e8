// Package ffmpeg locates the ffmpeg executable and runs it without a console
// window, killing the whole process tree when asked to.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/owlcms/clickrec/internal/logging"
)

// ErrNotFound is returned when no ffmpeg executable can be located.
var ErrNotFound = errors.New("ffmpeg not found")

type locator struct {
	getenv     func(string) string
	lookPath   func(string) (string, error)
	executable func() (string, error)
	stat       func(string) (os.FileInfo, error)
	goos       string
}

var system = locator{
	getenv:     os.Getenv,
	lookPath:   exec.LookPath,
	executable: os.Executable,
	stat:       os.Stat,
	goos:       runtime.GOOS,
}

// Locate returns the ffmpeg executable to use. FFMPEG_PATH wins, then the
// configured path, then ffmpeg on the PATH, then a copy shipped next to the
// program (directly or under ffmpeg/bin).
func Locate(configured string) (string, error) {
	return system.locate(configured)
}

func (l locator) locate(configured string) (string, error) {
	if p := l.getenv("FFMPEG_PATH"); p != "" {
		logging.Trace("Using ffmpeg from FFMPEG_PATH: %s", p)
		return p, nil
	}
	if configured != "" {
		return configured, nil
	}

	names := []string{"ffmpeg"}
	if l.goos == "windows" {
		names = []string{"ffmpeg.exe", "ffmpeg"}
	}
	for _, name := range names {
		if p, err := l.lookPath(name); err == nil {
			logging.Trace("Found ffmpeg in PATH at: %s", p)
			return p, nil
		}
	}

	if exe, err := l.executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, name := range names {
			for _, p := range []string{filepath.Join(dir, name), filepath.Join(dir, "ffmpeg", "bin", name)} {
				if _, err := l.stat(p); err == nil {
					logging.Trace("Found bundled ffmpeg at: %s", p)
					return p, nil
				}
			}
		}
	}
	return "", ErrNotFound
}

// Command returns an ffmpeg command that runs hidden and, when ctx is
// cancelled, is killed along with anything it spawned.
func Command(ctx context.Context, path string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	hide(cmd)
	cmd.Cancel = func() error { return ForceKill(cmd) }
	return cmd
}

// ForceKill kills a started command and its children.
func ForceKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logging.InfoLogger.Printf("Killing ffmpeg process %d", cmd.Process.Pid)
	return forceKill(cmd)
}

// Output runs a probe command and returns its combined stdout and stderr.
// ffmpeg exits non-zero for listing commands, so the output is returned even
// when err is set.
func Output(ctx context.Context, path string, args ...string) (string, error) {
	cmd := Command(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		err = fmt.Errorf("%s %s: %w", filepath.Base(path), strings.Join(args, " "), err)
	}
	return out.String(), err
}
