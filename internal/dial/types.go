// Package dial reads the needle positions of a fixed row of gauge dials.
package dial

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DialConfig describes one physical dial. Dials are ordered by ascending
// horizontal position in the frame.
type DialConfig struct {
	OffsetDegrees    float64 `json:"offset" toml:"offset"`       // Rotation of the dial's zero mark from "up"
	Clockwise        bool    `json:"clockwise" toml:"clockwise"` // Direction the needle turns as the value grows
	ContributesDigit bool    `json:"digit" toml:"digit"`         // Whether the dial yields a whole digit
}

// Validate checks that the dial configuration is usable.
func (c DialConfig) Validate() error {
	if c.OffsetDegrees < 0 || c.OffsetDegrees >= 360 {
		return fmt.Errorf("offset %.1f out of range [0,360)", c.OffsetDegrees)
	}
	return nil
}

// DefaultDials returns the four-dial layout of the reference gas meter:
// alternating counter-clockwise and clockwise dials, all contributing digits.
func DefaultDials() []DialConfig {
	return []DialConfig{
		{Clockwise: false, ContributesDigit: true},
		{Clockwise: true, ContributesDigit: true},
		{Clockwise: false, ContributesDigit: true},
		{Clockwise: true, ContributesDigit: true},
	}
}

// AngleResult is the least-covered direction of one dial, in whole degrees
// in [0,360), measured clockwise from "up".
type AngleResult struct {
	Degrees int
}

// ReadingVector holds one frame's digits, most significant first, plus the
// fractional remainder taken from the finest digit dial.
type ReadingVector struct {
	Digits       []int
	Remainder    float64
	HasRemainder bool
}

// Len returns the number of elements: one per digit plus the remainder.
func (v ReadingVector) Len() int {
	n := len(v.Digits)
	if v.HasRemainder {
		n++
	}
	return n
}

// Sink receives intermediate images for diagnostics.
type Sink interface {
	Write(name string, img gocv.Mat)
}

type nopSink struct{}

func (nopSink) Write(string, gocv.Mat) {}

// NopSink discards every image.
var NopSink Sink = nopSink{}
