// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Image returns the point truncated to integer pixel coordinates.
func (p Point2D) Image() image.Point {
	return image.Pt(int(p.X), int(p.Y))
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x" toml:"x"`
	Y      int `json:"y" toml:"y"`
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// Empty reports whether the rectangle has no area.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rectangle converts to an image.Rectangle.
func (r RectInt) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ClampTo returns the part of the rectangle that lies inside a width x height image.
func (r RectInt) ClampTo(width, height int) RectInt {
	x0 := max(r.X, 0)
	y0 := max(r.Y, 0)
	x1 := min(r.X+r.Width, width)
	y1 := min(r.Y+r.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return RectInt{}
	}
	return RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Circle is a detected dial face in pixel space.
type Circle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Center returns the circle center.
func (c Circle) Center() Point2D {
	return Point2D{X: c.X, Y: c.Y}
}

// SquareBounds returns the square around the circle grown by pad pixels on
// every side. Coordinates are truncated the way pixel indices are.
func (c Circle) SquareBounds(pad int) RectInt {
	x, y := int(c.X), int(c.Y)
	r := int(c.Radius) + pad
	return RectInt{X: x - r, Y: y - r, Width: 2 * r, Height: 2 * r}
}

// PointOnRay returns the point reached by rotating (cx, 0) clockwise around
// (cx, cy) by degrees. 0 degrees points up in image coordinates.
func PointOnRay(cx, cy, degrees float64) Point2D {
	return PointOnCircle(cx, cy, cy, degrees)
}

// PointOnCircle returns the point at distance r from (cx, cy), degrees
// clockwise from straight up.
func PointOnCircle(cx, cy, r, degrees float64) Point2D {
	rad := degrees * math.Pi / 180
	return Point2D{
		X: cx + math.Sin(rad)*r,
		Y: cy - math.Cos(rad)*r,
	}
}

// InscribedRadius returns the radius of the largest circle centred in a
// width x height image.
func InscribedRadius(width, height int) int {
	return min(width, height) / 2
}
