package dial

import (
	"fmt"
	"image"
	"sort"

	"gasmeter/pkg/colorutil"
	"gasmeter/pkg/geometry"

	"gocv.io/x/gocv"
)

// Reader locates dials in a crop of the meter face and reads each one.
type Reader struct {
	Params Params
	Dials  []DialConfig
	Mask   MaskStrategy
	Sink   Sink
}

// NewReader creates a Reader for the given dial layout.
func NewReader(params Params, dials []DialConfig, mask MaskStrategy) *Reader {
	if mask == nil {
		mask = DefaultCannyMask()
	}
	return &Reader{
		Params: params,
		Dials:  dials,
		Mask:   mask,
		Sink:   NopSink,
	}
}

func (r *Reader) sink() Sink {
	if r.Sink == nil {
		return NopSink
	}
	return r.Sink
}

// Locate finds candidate dial faces in a BGR crop of the meter, sorted by
// ascending x. Any number of circles may come back; callers decide whether
// the count matches the layout.
func (r *Reader) Locate(crop gocv.Mat) ([]geometry.Circle, error) {
	if crop.Empty() {
		return nil, fmt.Errorf("empty crop")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)
	r.sink().Write("gray", gray)

	norm, err := Normalize(gray)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	defer norm.Close()
	r.sink().Write("norm", norm)

	k := r.Params.BlurKernel
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(norm, &blurred, image.Point{k, k}, 0, 0, gocv.BorderDefault)
	r.sink().Write("blurred", blurred)

	circles := gocv.NewMat()
	defer circles.Close()
	gocv.HoughCirclesWithParams(blurred, &circles, gocv.HoughGradient,
		r.Params.HoughDP, r.Params.HoughMinDist,
		r.Params.HoughParam1, r.Params.HoughParam2,
		r.Params.MinRadius, r.Params.MaxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return nil, nil
	}

	found := make([]geometry.Circle, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		found[i] = geometry.Circle{
			X:      float64(circles.GetFloatAt(0, i*3)),
			Y:      float64(circles.GetFloatAt(0, i*3+1)),
			Radius: float64(circles.GetFloatAt(0, i*3+2)),
		}
	}
	SortByX(found)
	return found, nil
}

// SortByX orders circles left to right.
func SortByX(circles []geometry.Circle) {
	sort.SliceStable(circles, func(i, j int) bool {
		return circles[i].X < circles[j].X
	})
}

// ReadDial estimates the needle angle of one dial crop (BGR).
func (r *Reader) ReadDial(idx int, dialImg gocv.Mat) AngleResult {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(dialImg, &gray, gocv.ColorBGRToGray)

	mask := r.Mask.Mask(gray)
	defer mask.Close()
	r.sink().Write(fmt.Sprintf("edges-%d", idx), mask)

	trimmed := TrimRim(mask, r.Params.RimWidth)
	defer trimmed.Close()
	r.sink().Write(fmt.Sprintf("trimmed-%d", idx), trimmed)

	counts := CoverageProfile(trimmed, r.Params.AngleStep, r.Params.RayWidth)
	return LeastCoveredAngle(counts, r.Params.AngleStep)
}

// ReadFrame reads every configured dial of a crop using the given circles,
// which must be sorted by x and match the dial layout one to one. Dials whose
// padded square falls outside the crop are skipped, shortening the result.
func (r *Reader) ReadFrame(crop gocv.Mat, circles []geometry.Circle) (ReadingVector, error) {
	if len(circles) != len(r.Dials) {
		return ReadingVector{}, fmt.Errorf("have %d circles for %d dials", len(circles), len(r.Dials))
	}

	overlay := crop.Clone()
	defer overlay.Close()

	angles := make([]*AngleResult, len(r.Dials))
	for i, c := range circles {
		bounds := c.SquareBounds(r.Params.DialPadding).ClampTo(crop.Cols(), crop.Rows())
		if bounds.Empty() {
			continue
		}
		region := crop.Region(bounds.Rectangle())
		dialImg := region.Clone()
		region.Close()

		angle := r.ReadDial(i, dialImg)
		angles[i] = &angle
		r.drawDial(&overlay, i, dialImg, c, angle)
		dialImg.Close()
	}
	r.sink().Write("circles", overlay)

	return BuildReading(angles, r.Dials), nil
}

// drawDial renders the chosen angle on the dial crop and the detected circle
// on the overlay.
func (r *Reader) drawDial(overlay *gocv.Mat, idx int, dialImg gocv.Mat, c geometry.Circle, angle AngleResult) {
	w, h := float64(dialImg.Cols()), float64(dialImg.Rows())
	center := image.Pt(int(w/2), int(h/2))
	length := float64(geometry.InscribedRadius(dialImg.Cols(), dialImg.Rows()))

	offset := geometry.PointOnCircle(w/2, h/2, length, r.Dials[idx].OffsetDegrees).Image()
	gocv.Line(&dialImg, center, offset, colorutil.Green, 2)
	end := geometry.PointOnCircle(w/2, h/2, length, float64(angle.Degrees)).Image()
	gocv.Line(&dialImg, center, end, colorutil.Red, 2)
	r.sink().Write(fmt.Sprintf("angle-%d", idx), dialImg)

	radius := int(c.Radius) + r.Params.DialPadding
	gocv.Circle(overlay, c.Center().Image(), radius, colorutil.Green, 2)
	gocv.Circle(overlay, c.Center().Image(), 2, colorutil.Red, 3)
	gocv.PutText(overlay, fmt.Sprintf("%d", angle.Degrees), image.Pt(int(c.X)-10, int(c.Y)+radius+20),
		gocv.FontHersheySimplex, 0.6, colorutil.Black, 2)
}
