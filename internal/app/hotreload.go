package app

import (
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// HotReloader detects that the running binary has been replaced so the
// loop can re-exec itself between cycles.
type HotReloader struct {
	execPath    string
	startupTime time.Time
}

// NewHotReloader watches the current executable. Returns nil if the
// executable path cannot be determined.
func NewHotReloader() *HotReloader {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}
	// Resolve symlinks so a rebuilt target is seen, not the old link
	if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = realPath
	}
	return newHotReloaderFor(execPath)
}

func newHotReloaderFor(path string) *HotReloader {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &HotReloader{execPath: path, startupTime: info.ModTime()}
}

// Changed reports whether the binary has been modified since startup.
func (h *HotReloader) Changed() bool {
	info, err := os.Stat(h.execPath)
	if err != nil {
		return false
	}
	return info.ModTime().After(h.startupTime)
}

// ExecPath returns the path to the watched executable.
func (h *HotReloader) ExecPath() string {
	return h.execPath
}

// StartupTime returns the binary's modification time at program start.
func (h *HotReloader) StartupTime() time.Time {
	return h.startupTime
}

// Restart replaces the current process with a new instance of the binary,
// preserving arguments and environment. It does not return on success.
func (h *HotReloader) Restart() error {
	return syscall.Exec(h.execPath, os.Args, os.Environ())
}
