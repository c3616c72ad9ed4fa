package dial

import (
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

// MaskStrategy turns a grayscale dial crop into a binary mask where ink
// (needle, ticks, numerals) is nonzero. Implementations must be deterministic.
type MaskStrategy interface {
	Mask(gray gocv.Mat) gocv.Mat
	Name() string
}

// CannyMask marks edges found by the Canny detector after a light blur.
type CannyMask struct {
	Kernel int
	Low    float32
	High   float32
}

// DefaultCannyMask returns the edge mask used by the reference meter.
func DefaultCannyMask() CannyMask {
	return CannyMask{Kernel: 5, Low: 50, High: 200}
}

// Mask implements MaskStrategy.
func (c CannyMask) Mask(gray gocv.Mat) gocv.Mat {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{c.Kernel, c.Kernel}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	gocv.Canny(blurred, &edges, c.Low, c.High)
	return edges
}

// Name implements MaskStrategy.
func (CannyMask) Name() string { return "canny" }

// ThresholdMask marks pixels darker than Level. Dark ink on a light face
// becomes white in the mask.
type ThresholdMask struct {
	Kernel int
	Level  float32
}

// DefaultThresholdMask returns a binarization mask with a mid-gray cutoff.
func DefaultThresholdMask() ThresholdMask {
	return ThresholdMask{Kernel: 5, Level: 100}
}

// Mask implements MaskStrategy.
func (t ThresholdMask) Mask(gray gocv.Mat) gocv.Mat {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{t.Kernel, t.Kernel}, 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.Threshold(blurred, &mask, t.Level, 255, gocv.ThresholdBinaryInv)
	return mask
}

// Name implements MaskStrategy.
func (ThresholdMask) Name() string { return "threshold" }

// ParseMaskStrategy returns the strategy registered under name. Level is
// only used by the threshold strategy; zero keeps its default.
func ParseMaskStrategy(name string, level float32) (MaskStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "canny":
		return DefaultCannyMask(), nil
	case "threshold":
		m := DefaultThresholdMask()
		if level > 0 {
			m.Level = level
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mask strategy %q (want canny or threshold)", name)
	}
}
