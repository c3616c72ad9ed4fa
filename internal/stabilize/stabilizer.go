package stabilize

import (
	"fmt"
	"math"
)

// OutlierPolicy selects how the jump between two readings is judged.
type OutlierPolicy string

const (
	// OutlierAbsolute rejects a jump larger than the threshold in meter units.
	OutlierAbsolute OutlierPolicy = "absolute"
	// OutlierRelative rejects a jump larger than threshold * last, or than
	// the floor when that is larger.
	OutlierRelative OutlierPolicy = "relative"
)

// Policy holds the tunable parts of stabilization.
type Policy struct {
	RoundStep float64
	Outlier   OutlierPolicy
	Threshold float64
	Floor     float64 // Smallest jump the relative policy ever rejects
}

// DefaultPolicy rounds to 0.2 and rejects jumps of more than one unit.
func DefaultPolicy() Policy {
	return Policy{
		RoundStep: 0.2,
		Outlier:   OutlierAbsolute,
		Threshold: 1.0,
		Floor:     1.0,
	}
}

// Validate checks the policy for unusable values.
func (p Policy) Validate() error {
	if p.RoundStep <= 0 {
		return fmt.Errorf("round step must be positive, got %g", p.RoundStep)
	}
	switch p.Outlier {
	case OutlierAbsolute, OutlierRelative:
	default:
		return fmt.Errorf("unknown outlier policy %q", p.Outlier)
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("outlier threshold must be positive, got %g", p.Threshold)
	}
	if p.Outlier == OutlierRelative && p.Floor <= 0 {
		return fmt.Errorf("relative outlier policy needs a positive floor, got %g", p.Floor)
	}
	return nil
}

// Round snaps v to the nearest multiple of the round step.
func (p Policy) Round(v float64) float64 {
	inv := 1 / p.RoundStep
	return math.Round(v*inv) / inv
}

// IsOutlier reports whether v is an implausible jump from last. Under the
// relative policy a last reading near zero falls back to the floor, so a
// zero reading does not lock out every later one.
func (p Policy) IsOutlier(last, v float64) bool {
	delta := math.Abs(last - v)
	if p.Outlier == OutlierRelative {
		return delta > max(p.Threshold*math.Abs(last), p.Floor)
	}
	return delta > p.Threshold
}

// Decision is the outcome of stabilizing one candidate.
type Decision struct {
	Candidate    float64       // Raw cycle estimate
	Unwrapped    float64       // Candidate shifted into the prior range
	Range        ExpectedRange // Range recentred on the unwrapped value
	RangeChanged bool          // Range differs from the prior one and needs saving
	Value        float64       // Rounded and floored value to publish
	Floored      bool
	Rejected     bool
	Last         *float64 // Last accepted reading the decision was made against
}

func (d Decision) String() string {
	switch {
	case d.Rejected:
		return fmt.Sprintf("rejected %.1f (last %.1f)", d.Value, *d.Last)
	case d.Floored:
		return fmt.Sprintf("floored %.1f to %.1f", d.Unwrapped, d.Value)
	default:
		return fmt.Sprintf("accepted %.1f", d.Value)
	}
}

// Stabilizer applies a Policy to successive candidates.
type Stabilizer struct {
	policy Policy
}

// NewStabilizer creates a Stabilizer. Invalid policies are rejected.
func NewStabilizer(policy Policy) (*Stabilizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{policy: policy}, nil
}

// Policy returns the stabilizer's policy.
func (s *Stabilizer) Policy() Policy {
	return s.policy
}

// Stabilize unwraps the candidate into rng (when known), recentres the
// range, rounds, checks for an outlier against last (when known) and
// applies the monotonic floor. It never mutates its inputs: the caller
// persists Range when RangeChanged and advances last only after Value is
// published.
func (s *Stabilizer) Stabilize(candidate float64, rng *ExpectedRange, last *float64) Decision {
	d := Decision{Candidate: candidate, Unwrapped: candidate, Last: last}

	if rng != nil {
		d.Unwrapped = rng.Unwrap(candidate)
	}

	d.Range = RangeAround(d.Unwrapped)
	d.RangeChanged = rng == nil || *rng != d.Range

	d.Value = s.policy.Round(d.Unwrapped)

	if last == nil {
		return d
	}
	if s.policy.IsOutlier(*last, d.Value) {
		d.Rejected = true
		return d
	}
	if d.Value < *last {
		d.Value = *last
		d.Floored = true
	}
	return d
}
