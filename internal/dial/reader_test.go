package dial

import (
	"image"
	"testing"

	"gasmeter/pkg/colorutil"
	"gasmeter/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var dialCenters = []image.Point{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 500, Y: 100}, {X: 700, Y: 100}}

const dialRadius = 60

// meterFace draws four dark dial faces on a white 800x200 BGR image, listed
// right to left so the result order has to come from sorting.
func meterFace(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 800, gocv.MatTypeCV8UC3)
	for i := len(dialCenters) - 1; i >= 0; i-- {
		gocv.Circle(&img, dialCenters[i], dialRadius, colorutil.Black, -1)
	}
	t.Cleanup(func() { img.Close() })
	return img
}

func TestLocateFindsDrawnDials(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)

	circles, err := r.Locate(meterFace(t))
	require.NoError(t, err)
	require.Len(t, circles, len(dialCenters))

	for i, c := range circles {
		if i > 0 {
			assert.Less(t, circles[i-1].X, c.X, "sorted by x")
		}
		assert.InDelta(t, float64(dialCenters[i].X), c.X, 3)
		assert.InDelta(t, float64(dialCenters[i].Y), c.Y, 3)
		assert.InDelta(t, float64(dialRadius), c.Radius, 5)
	}
}

func TestLocateEmptyCrop(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := r.Locate(empty)
	assert.Error(t, err)
}

func TestLocateBlankImage(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)
	blankImg := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 800, gocv.MatTypeCV8UC3)
	defer blankImg.Close()

	circles, err := r.Locate(blankImg)
	require.NoError(t, err)
	assert.Empty(t, circles)
}

func drawnCircles() []geometry.Circle {
	out := make([]geometry.Circle, len(dialCenters))
	for i, p := range dialCenters {
		out[i] = geometry.Circle{X: float64(p.X), Y: float64(p.Y), Radius: dialRadius}
	}
	return out
}

func TestReadFrameReadsEveryDial(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)

	v, err := r.ReadFrame(meterFace(t), drawnCircles())
	require.NoError(t, err)
	assert.Equal(t, ExpectedLen(r.Dials), v.Len())
	for _, d := range v.Digits {
		assert.GreaterOrEqual(t, d, 0)
		assert.LessOrEqual(t, d, 9)
	}
}

func TestReadFrameSkipsDialOutsideCrop(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)

	circles := drawnCircles()
	circles[0].X = -500

	v, err := r.ReadFrame(meterFace(t), circles)
	require.NoError(t, err)
	assert.Less(t, v.Len(), ExpectedLen(r.Dials))
}

func TestReadFrameCircleCountMismatch(t *testing.T) {
	r := NewReader(DefaultParams(), DefaultDials(), nil)

	_, err := r.ReadFrame(meterFace(t), drawnCircles()[:3])
	assert.Error(t, err)
}
