// Package estimate combines the frames of one capture cycle into a single
// candidate meter reading.
package estimate

import (
	"errors"

	"gasmeter/internal/dial"
	"gasmeter/internal/monitoring"
	"gasmeter/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// ErrNoValidFrames is returned when no frame of a cycle yields a usable reading.
var ErrNoValidFrames = errors.New("no valid frames in cycle")

// DialReader locates and reads dials on a crop of the meter face.
type DialReader interface {
	Locate(crop gocv.Mat) ([]geometry.Circle, error)
	ReadFrame(crop gocv.Mat, circles []geometry.Circle) (dial.ReadingVector, error)
}

// Estimator turns a batch of frames into a candidate reading.
type Estimator struct {
	reader      DialReader
	roi         geometry.RectInt
	dialCount   int
	expectedLen int
}

// NewEstimator creates an Estimator for the given dial layout. A zero roi
// means the whole frame.
func NewEstimator(reader DialReader, roi geometry.RectInt, dials []dial.DialConfig) *Estimator {
	return &Estimator{
		reader:      reader,
		roi:         roi,
		dialCount:   len(dials),
		expectedLen: dial.ExpectedLen(dials),
	}
}

// CycleResult describes one cycle's estimate.
type CycleResult struct {
	Candidate   float64           // Mean of the per-frame readings
	Geometry    []geometry.Circle // Shared dial geometry used for every frame
	Readings    []float64         // Per-frame readings that passed
	TotalFrames int
	ValidFrames int // Frames with the expected circle count
}

// crop returns the region of interest of a frame. The caller closes it.
func (e *Estimator) crop(frame gocv.Mat) (gocv.Mat, bool) {
	if e.roi.Empty() {
		return frame.Clone(), true
	}
	r := e.roi.ClampTo(frame.Cols(), frame.Rows())
	if r.Empty() {
		return gocv.NewMat(), false
	}
	region := frame.Region(r.Rectangle())
	defer region.Close()
	return region.Clone(), true
}

// EstimateCycle locates dials on every frame, folds the median geometry of
// the valid frames into history, and reads every valid frame with the
// history's mean geometry. It returns ErrNoValidFrames when nothing usable
// remains.
func (e *Estimator) EstimateCycle(frames []gocv.Mat, history *CircleHistory) (CycleResult, error) {
	result := CycleResult{TotalFrames: len(frames)}

	var crops []gocv.Mat
	defer func() {
		for i := range crops {
			crops[i].Close()
		}
	}()

	var sets [][]geometry.Circle
	for i, frame := range frames {
		if frame.Empty() {
			monitoring.Logf("[Estimate] frame %d: empty, discarded", i)
			continue
		}
		crop, ok := e.crop(frame)
		if !ok {
			monitoring.Logf("[Estimate] frame %d: region of interest outside %dx%d frame", i, frame.Cols(), frame.Rows())
			crop.Close()
			continue
		}
		circles, err := e.reader.Locate(crop)
		if err != nil || len(circles) != e.dialCount {
			monitoring.Logf("[Estimate] frame %d: found %d circles, want %d (err=%v)", i, len(circles), e.dialCount, err)
			crop.Close()
			continue
		}
		dial.SortByX(circles)
		crops = append(crops, crop)
		sets = append(sets, circles)
	}

	result.ValidFrames = len(sets)
	if len(sets) == 0 {
		return result, ErrNoValidFrames
	}

	history.Push(MedianSet(sets))
	result.Geometry = history.Mean()

	for i, crop := range crops {
		v, err := e.reader.ReadFrame(crop, result.Geometry)
		if err != nil {
			monitoring.Logf("[Estimate] valid frame %d: %v", i, err)
			continue
		}
		if v.Len() != e.expectedLen {
			monitoring.Logf("[Estimate] valid frame %d: reading has %d elements, want %d", i, v.Len(), e.expectedLen)
			continue
		}
		result.Readings = append(result.Readings, dial.AssembleReading(v))
	}

	if len(result.Readings) == 0 {
		return result, ErrNoValidFrames
	}
	result.Candidate = stat.Mean(result.Readings, nil)
	return result, nil
}
