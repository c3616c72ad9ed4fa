// Package stabilize turns noisy per-cycle candidate readings into a
// publishable, non-decreasing meter value.
package stabilize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	// RangeWidth is the span of every expected range. It matches the
	// rollover of the slowest sub-dial.
	RangeWidth = 2000.0

	// RecenterStep is the granularity the range midpoint snaps to.
	RecenterStep = 500.0
)

// ErrRangeCorrupt marks a range file that exists but cannot be used.
var ErrRangeCorrupt = errors.New("range file corrupt")

// ExpectedRange is the window used to resolve dial rollover between cycles.
// On disk it is the JSON array [low, high].
type ExpectedRange struct {
	Low  float64
	High float64
}

// RangeAround returns the range of RangeWidth centred on v snapped to the
// nearest RecenterStep.
func RangeAround(v float64) ExpectedRange {
	mid := math.Round(v/RecenterStep) * RecenterStep
	return ExpectedRange{Low: mid - RangeWidth/2, High: mid + RangeWidth/2}
}

// Width returns High - Low.
func (r ExpectedRange) Width() float64 {
	return r.High - r.Low
}

// Contains reports whether v lies within [Low, High].
func (r ExpectedRange) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Unwrap shifts v by whole range widths until it falls inside the range.
// The shift is computed in one step, so the cost does not depend on how far
// v is from the range. A range with no width leaves v unchanged.
func (r ExpectedRange) Unwrap(v float64) float64 {
	w := r.Width()
	if w <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if v > r.High {
		v -= math.Ceil((v-r.High)/w) * w
	}
	if v < r.Low {
		v += math.Ceil((r.Low-v)/w) * w
	}
	return v
}

func (r ExpectedRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Low, r.High)
}

// MarshalJSON encodes the range as [low, high].
func (r ExpectedRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Low, r.High})
}

// UnmarshalJSON decodes [low, high]. Anything but a range exactly
// RangeWidth wide is rejected.
func (r *ExpectedRange) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("want [low, high], got %d values", len(pair))
	}
	if pair[1] <= pair[0] {
		return fmt.Errorf("low %g not below high %g", pair[0], pair[1])
	}
	if w := pair[1] - pair[0]; w != RangeWidth {
		return fmt.Errorf("width %g, want %g", w, RangeWidth)
	}
	r.Low, r.High = pair[0], pair[1]
	return nil
}

// LoadRange reads a range file. A missing file returns (nil, nil) so the
// caller can start cold; an unreadable or malformed one returns an error
// wrapping ErrRangeCorrupt.
func LoadRange(path string) (*ExpectedRange, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRangeCorrupt, path, err)
	}

	var r ExpectedRange
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRangeCorrupt, path, err)
	}
	return &r, nil
}

// SaveRange writes the range next to path and renames it into place, so a
// crash never leaves a half-written file behind.
func SaveRange(path string, r ExpectedRange) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create range dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp range file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write range file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close range file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace range file: %w", err)
	}
	return nil
}
