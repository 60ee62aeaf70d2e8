//go:build !windows

// Package jobutil ties ffmpeg child processes to the lifetime of the program.
// Outside Windows the encoders run in their own process group instead, so
// these functions do nothing.
package jobutil

import "os/exec"

func Init() error { return nil }

func Assign(cmd *exec.Cmd) error { return nil }

func Close() error { return nil }
