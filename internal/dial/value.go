package dial

import (
	"math"
)

// Position returns how far round the dial the needle is, in [0,1), after
// removing the dial's offset and correcting for its direction.
func Position(angle AngleResult, cfg DialConfig) float64 {
	deg := math.Mod(float64(angle.Degrees)-cfg.OffsetDegrees, 360)
	if deg < 0 {
		deg += 360
	}
	pos := deg / 360
	if !cfg.Clockwise && pos > 0 {
		pos = 1 - pos
	}
	return pos
}

// MapValue converts a dial angle into its digit. Dials that do not
// contribute a digit always map to 0.
func MapValue(angle AngleResult, cfg DialConfig) int {
	factor := 0.0
	if cfg.ContributesDigit {
		factor = 1
	}
	digit := int(math.Floor(10 * Position(angle, cfg) * factor))
	return min(max(digit, 0), 9)
}

// BuildReading maps the angles of the configured dials into a ReadingVector.
// angles[i] belongs to dials[i]; a nil entry means the dial produced nothing
// and its contribution is left out, shortening the vector.
//
// The remainder is 10*Position of the last digit dial minus its digit, not
// the raw angle/360*10. For an unrotated clockwise last dial the two are the
// same number. With an offset or a counter-clockwise last dial only the
// corrected position stays in [0, 1) next to the digit it refines.
func BuildReading(angles []*AngleResult, dials []DialConfig) ReadingVector {
	var v ReadingVector
	var last *AngleResult
	var lastCfg DialConfig
	for i, cfg := range dials {
		if i >= len(angles) || angles[i] == nil || !cfg.ContributesDigit {
			continue
		}
		v.Digits = append(v.Digits, MapValue(*angles[i], cfg))
		last, lastCfg = angles[i], cfg
	}
	if last != nil {
		v.Remainder = 10*Position(*last, lastCfg) - float64(v.Digits[len(v.Digits)-1])
		v.HasRemainder = true
	}
	return v
}

// ExpectedLen returns the ReadingVector length a complete frame yields.
func ExpectedLen(dials []DialConfig) int {
	n := 0
	for _, d := range dials {
		if d.ContributesDigit {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n + 1
}

// AssembleReading combines digits, most significant first, with the
// fractional remainder into one odometer value.
func AssembleReading(v ReadingVector) float64 {
	var value float64
	n := len(v.Digits)
	for i, d := range v.Digits {
		value += float64(d) * math.Pow10(n-1-i)
	}
	return value + v.Remainder
}
