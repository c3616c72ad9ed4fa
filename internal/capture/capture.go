// Package capture acquires batches of frames for one reading cycle.
package capture

import (
	"context"
	"errors"
	"fmt"

	"gasmeter/internal/image"
	"gasmeter/internal/monitoring"

	"gocv.io/x/gocv"
)

// ErrNoFrames is returned when a source yields nothing for a cycle.
var ErrNoFrames = errors.New("no frames captured")

// Source produces up to n frames per call. The caller owns and closes the
// returned Mats.
type Source interface {
	Capture(ctx context.Context, n int) ([]gocv.Mat, error)
}

// Close releases every Mat in frames.
func Close(frames []gocv.Mat) {
	for i := range frames {
		frames[i].Close()
	}
}

// Camera reads from a video device. The device is opened for each batch and
// released before Capture returns.
type Camera struct {
	Device int
	Width  int
	Height int
}

// Capture opens the device, reads n frames and closes it again. Unreadable
// frames are skipped; ErrNoFrames is returned if none could be read.
func (c *Camera) Capture(ctx context.Context, n int) ([]gocv.Mat, error) {
	vc, err := gocv.OpenVideoCapture(c.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", c.Device, err)
	}
	defer vc.Close()

	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	var frames []gocv.Mat
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		frame := gocv.NewMat()
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			monitoring.Logf("[Capture] camera %d: frame %d unreadable", c.Device, i)
			frame.Close()
			continue
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return frames, nil
}

// Files replays still images, handing out n per call and wrapping around
// at the end of the list.
type Files struct {
	Paths []string
	next  int
}

// NewFiles creates a replay source from explicit paths or directories.
func NewFiles(paths ...string) (*Files, error) {
	var all []string
	for _, p := range paths {
		listed, err := image.List(p)
		if err == nil {
			all = append(all, listed...)
			continue
		}
		if !image.IsSupportedFormat(p) {
			return nil, fmt.Errorf("%s: unsupported image format", p)
		}
		all = append(all, p)
	}
	if len(all) == 0 {
		return nil, ErrNoFrames
	}
	return &Files{Paths: all}, nil
}

// Capture decodes the next n images. Files that fail to decode are logged
// and skipped.
func (f *Files) Capture(ctx context.Context, n int) ([]gocv.Mat, error) {
	if len(f.Paths) == 0 {
		return nil, ErrNoFrames
	}
	if n <= 0 || n > len(f.Paths) {
		n = len(f.Paths)
	}

	var frames []gocv.Mat
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		path := f.Paths[f.next]
		f.next = (f.next + 1) % len(f.Paths)

		mat, err := image.LoadMat(path)
		if err != nil {
			monitoring.Logf("[Capture] %v", err)
			mat.Close()
			continue
		}
		frames = append(frames, mat)
	}

	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return frames, nil
}
