package dial

import (
	"fmt"

	"gocv.io/x/gocv"
)

// crush is how many gray levels past the darkest and brightest pixels are
// forced to pure black and white.
const crush = 15

// Normalize stretches the contrast of a single-channel 8-bit image between
// its darkest and brightest pixels, crushing the outer 15 levels.
func Normalize(gray gocv.Mat) (gocv.Mat, error) {
	if gray.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}
	if gray.Channels() != 1 || gray.Type() != gocv.MatTypeCV8UC1 {
		return gocv.NewMat(), fmt.Errorf("expected 8-bit grayscale, got type %v", gray.Type())
	}

	// Regions are not continuous; clone so ToBytes sees packed rows
	src := gray.Clone()
	defer src.Close()

	out := NormalizeBytes(src.ToBytes())
	return gocv.NewMatFromBytes(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, out)
}

// NormalizeBytes applies the contrast stretch of Normalize to raw gray levels.
// A near-uniform input saturates: everything above the black point becomes 255.
func NormalizeBytes(px []uint8) []uint8 {
	out := make([]uint8, len(px))
	if len(px) == 0 {
		return out
	}

	lo, hi := 255, 0
	for _, p := range px {
		v := int(p)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	blackest := lo + crush
	whitest := hi - crush
	span := whitest - blackest
	if span < 1 {
		span = 1
	}

	for i, p := range px {
		v := float64((int(p)-blackest)*255) / float64(span)
		switch {
		case v <= 0:
			out[i] = 0
		case v >= 255:
			out[i] = 255
		default:
			out[i] = uint8(v)
		}
	}
	return out
}
