// Package recordings names, creates and lists the clip files in a save directory.
package recordings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TimeFormat is the layout of generated clip names.
const TimeFormat = "20060102_150405"

// DefaultExtension is the only container written.
const DefaultExtension = ".mp4"

// ErrExtension is returned for output paths that are not .mp4 files.
var ErrExtension = errors.New("output file must have the .mp4 extension")

// Clip is a saved recording.
type Clip struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// EnsureDir creates dir if needed and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}
	return abs, nil
}

// NewOutputPath returns a timestamped path in dir, creating dir. If a clip with
// that name exists, a numeric suffix is added.
func NewOutputPath(dir, ext string, now time.Time) (string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.EqualFold(ext, DefaultExtension) {
		return "", fmt.Errorf("%w: %q", ErrExtension, ext)
	}
	abs, err := EnsureDir(dir)
	if err != nil {
		return "", err
	}
	base := now.Format(TimeFormat)
	path := filepath.Join(abs, base+ext)
	for i := 1; exists(path); i++ {
		path = filepath.Join(abs, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return path, nil
}

// ValidatePath checks a user supplied output path.
func ValidatePath(path string) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	if !strings.EqualFold(filepath.Ext(path), DefaultExtension) {
		return fmt.Errorf("%w: %s", ErrExtension, path)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		return fmt.Errorf("output directory %s does not exist", filepath.Dir(path))
	}
	return nil
}

// List returns the clips in dir, newest first. A missing dir has no clips.
func List(dir string) ([]Clip, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var clips []Clip
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), DefaultExtension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		clips = append(clips, Clip{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(clips, func(i, j int) bool {
		if !clips[i].ModTime.Equal(clips[j].ModTime) {
			return clips[i].ModTime.After(clips[j].ModTime)
		}
		return clips[i].Name > clips[j].Name
	})
	return clips, nil
}

// Folders lists the subdirectories of parent, offered as save locations.
func Folders(parent string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
