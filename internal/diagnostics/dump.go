// Package diagnostics keeps the intermediate images of the current cycle on
// disk and archives them when a reading is rejected.
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gasmeter/internal/monitoring"

	"gocv.io/x/gocv"
)

// Dumper writes per-cycle images into a work directory. It implements
// dial.Sink.
type Dumper struct {
	dir        string
	archiveDir string
	cycle      string
}

// New creates a Dumper, creating both directories.
func New(dir, archiveDir string) (*Dumper, error) {
	for _, d := range []string{dir, archiveDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create diagnostics dir: %w", err)
		}
	}
	return &Dumper{dir: dir, archiveDir: archiveDir}, nil
}

// Dir returns the work directory.
func (d *Dumper) Dir() string {
	return d.dir
}

const cycleFile = "cycle.txt"

// owned reports whether a work directory entry was written by a Dumper.
// Only those are cleared or archived; anything else in the directory is
// left alone.
func owned(e os.DirEntry) bool {
	if !e.Type().IsRegular() {
		return false
	}
	name := e.Name()
	return name == cycleFile || strings.EqualFold(filepath.Ext(name), ".jpg")
}

// Begin removes the previous cycle's images from the work directory and
// records the new cycle id in it.
func (d *Dumper) Begin(cycle string) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, e := range entries {
		if !owned(e) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	d.cycle = cycle
	return os.WriteFile(filepath.Join(d.dir, cycleFile), []byte(cycle+"\n"), 0o644)
}

// Write stores img as <name>.jpg. Failures are logged, never returned.
func (d *Dumper) Write(name string, img gocv.Mat) {
	if img.Empty() {
		return
	}
	path := filepath.Join(d.dir, name+".jpg")
	if ok := gocv.IMWrite(path, img); !ok {
		monitoring.Logf("[Diagnostics] failed to write %s", path)
	}
}

// ArchiveName returns the directory name used for a rejected value.
func ArchiveName(ts time.Time, value float64) string {
	return "rejected-" + ts.Format("20060102T150405") + "-" + strconv.FormatFloat(value, 'f', 1, 64)
}

// Archive copies the work directory to <archive>/rejected-<time>-<value> and
// returns the new directory.
func (d *Dumper) Archive(ts time.Time, value float64) (string, error) {
	if d.archiveDir == "" {
		return "", fmt.Errorf("no archive directory configured")
	}
	dst := filepath.Join(d.archiveDir, ArchiveName(ts, value))
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !owned(e) {
			continue
		}
		if err := copyFile(filepath.Join(d.dir, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return "", fmt.Errorf("archive %s: %w", e.Name(), err)
		}
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
