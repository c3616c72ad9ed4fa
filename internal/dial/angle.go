package dial

import (
	"image"
	"math"

	"gasmeter/pkg/colorutil"
	"gasmeter/pkg/geometry"

	"gocv.io/x/gocv"
)

// blank allocates a zeroed single-channel mask.
func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// TrimRim zeroes an annulus of the given width on the largest circle that
// fits the mask. Reflections off the bezel make the rim noisy.
func TrimRim(mask gocv.Mat, width int) gocv.Mat {
	h, w := mask.Rows(), mask.Cols()
	center := image.Pt(int(float64(w)/2), int(float64(h)/2))

	keep := blank(h, w)
	defer keep.Close()
	gocv.Circle(&keep, center, geometry.InscribedRadius(w, h), colorutil.White, width)
	gocv.BitwiseNot(keep, &keep)

	trimmed := blank(h, w)
	mask.CopyToWithMask(&trimmed, keep)
	return trimmed
}

// CoverageProfile counts the nonzero mask pixels under a ray from the crop
// center out to the rim circle used by TrimRim, for every step degrees
// starting at 0 ("up") and turning clockwise. The mask should already have
// its rim trimmed.
func CoverageProfile(mask gocv.Mat, step, rayWidth int) []int {
	if step <= 0 {
		step = 1
	}
	h, w := mask.Rows(), mask.Cols()
	cx, cy := float64(w)/2, float64(h)/2
	center := image.Pt(int(cx), int(cy))
	radius := float64(geometry.InscribedRadius(w, h))

	ray := blank(h, w)
	defer ray.Close()
	hit := gocv.NewMat()
	defer hit.Close()

	counts := make([]int, 0, 360/step)
	for angle := 0; angle < 360; angle += step {
		ray.SetTo(gocv.NewScalar(0, 0, 0, 0))
		end := geometry.PointOnCircle(cx, cy, radius, float64(angle)).Image()
		gocv.Line(&ray, center, end, colorutil.White, rayWidth)
		gocv.BitwiseAnd(mask, ray, &hit)
		counts = append(counts, gocv.CountNonZero(hit))
	}
	return counts
}

// LeastCoveredAngle picks the angle with the fewest covered pixels from a
// coverage profile sampled every step degrees.
//
// A strictly lower count adopts its angle and clears the tie streak. An equal
// count extends the streak and moves the choice to
// floor((2*angle - streak*step)/2), pulling it toward the middle of the run.
// A higher count sets the streak to 1 and keeps the current choice.
// The first sample always initializes the choice.
func LeastCoveredAngle(counts []int, step int) AngleResult {
	if step <= 0 {
		step = 1
	}
	var best, bestCount, streak int
	for i, count := range counts {
		angle := i * step
		switch {
		case i == 0 || count < bestCount:
			best, bestCount, streak = angle, count, 0
		case count == bestCount:
			streak++
			best = int(math.Floor(float64(2*angle-streak*step) / 2))
		default:
			streak = 1
		}
	}
	return AngleResult{Degrees: ((best % 360) + 360) % 360}
}

// EstimateAngle returns the least-covered direction of an edge mask. Reading
// the widest empty arc is steadier than locating a thin needle directly.
func EstimateAngle(mask gocv.Mat, params Params) AngleResult {
	trimmed := TrimRim(mask, params.RimWidth)
	defer trimmed.Close()
	return LeastCoveredAngle(CoverageProfile(trimmed, params.AngleStep, params.RayWidth), params.AngleStep)
}
