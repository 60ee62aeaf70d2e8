//go:build windows

// Package jobutil ties ffmpeg child processes to the lifetime of the program.
package jobutil

import (
	"fmt"
	"os/exec"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	mu  sync.Mutex
	job windows.Handle
)

// Init creates a job object with KILL_ON_JOB_CLOSE. Windows closes the handle
// when clickrec exits, for any reason, and kills every assigned encoder.
// Calling Init again is a no-op.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	if job != 0 {
		return nil
	}

	handle, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("CreateJobObject: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		handle,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(handle)
		return fmt.Errorf("SetInformationJobObject: %w", err)
	}
	job = handle
	return nil
}

// Assign adds a started command to the job. It does nothing before Init.
func Assign(cmd *exec.Cmd) error {
	mu.Lock()
	defer mu.Unlock()
	if job == 0 || cmd == nil || cmd.Process == nil {
		return nil
	}

	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(cmd.Process.Pid))
	if err != nil {
		return fmt.Errorf("OpenProcess(%d): %w", cmd.Process.Pid, err)
	}
	defer windows.CloseHandle(h)

	if err := windows.AssignProcessToJobObject(job, h); err != nil {
		return fmt.Errorf("AssignProcessToJobObject(%d): %w", cmd.Process.Pid, err)
	}
	return nil
}

// Close releases the job, killing any encoder still assigned to it.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if job == 0 {
		return nil
	}
	err := windows.CloseHandle(job)
	job = 0
	return err
}
