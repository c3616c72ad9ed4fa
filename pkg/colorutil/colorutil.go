// Package colorutil provides the overlay colors used on diagnostic images.
package colorutil

import (
	"image/color"
)

// Overlay colors. gocv converts these to BGR scalars when drawing.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)
