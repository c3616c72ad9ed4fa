package stabilize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func newDefault(t *testing.T) *Stabilizer {
	t.Helper()
	s, err := NewStabilizer(DefaultPolicy())
	require.NoError(t, err)
	return s
}

func TestUnwrapIntoRange(t *testing.T) {
	r := ExpectedRange{Low: 0, High: 2000}
	assert.Equal(t, 100.0, r.Unwrap(2100))
	assert.Equal(t, 1900.0, r.Unwrap(-100))
	assert.Equal(t, 100.0, r.Unwrap(6100))
	assert.Equal(t, 1500.0, r.Unwrap(1500))
	assert.Equal(t, 7.0, ExpectedRange{Low: 5, High: 5}.Unwrap(7), "zero width is a no-op")
}

func TestRangeAround(t *testing.T) {
	tests := []struct {
		v    float64
		want ExpectedRange
	}{
		{1234.4, ExpectedRange{0, 2000}},
		{1250, ExpectedRange{500, 2500}},
		{100, ExpectedRange{-1000, 1000}},
		{9999.8, ExpectedRange{9000, 11000}},
	}
	for _, tt := range tests {
		got := RangeAround(tt.v)
		assert.Equal(t, tt.want, got, "v=%g", tt.v)
		assert.Equal(t, RangeWidth, got.Width())
		assert.True(t, got.Contains(tt.v))
	}
}

func TestStabilizeUnwrapsAgainstPriorRange(t *testing.T) {
	s := newDefault(t)
	d := s.Stabilize(2100, &ExpectedRange{Low: 0, High: 2000}, nil)
	assert.Equal(t, 100.0, d.Unwrapped)
	assert.InDelta(t, 100.0, d.Value, 1e-9)
	assert.Equal(t, ExpectedRange{-1000, 1000}, d.Range)
	assert.True(t, d.RangeChanged)
	assert.False(t, d.Rejected)
}

func TestStabilizeColdStart(t *testing.T) {
	s := newDefault(t)
	d := s.Stabilize(2100, nil, nil)
	assert.Equal(t, 2100.0, d.Unwrapped, "no range means no unwrap")
	assert.Equal(t, ExpectedRange{1000, 3000}, d.Range)
	assert.True(t, d.RangeChanged)
}

func TestStabilizeKeepsUnchangedRange(t *testing.T) {
	s := newDefault(t)
	rng := ExpectedRange{0, 2000}
	d := s.Stabilize(1234.43, &rng, nil)
	assert.False(t, d.RangeChanged)
	assert.InDelta(t, 1234.4, d.Value, 1e-9)
	assert.Equal(t, ExpectedRange{0, 2000}, rng, "inputs are not mutated")
}

func TestStabilizeOutliers(t *testing.T) {
	s := newDefault(t)
	rng := ExpectedRange{0, 2000}

	t.Run("large jump rejected", func(t *testing.T) {
		last := ptr(1000.0)
		d := s.Stabilize(1005.0, &rng, last)
		assert.True(t, d.Rejected)
		assert.Equal(t, 1000.0, *last)
		assert.Contains(t, d.String(), "rejected 1005.0")
	})

	t.Run("small jump accepted", func(t *testing.T) {
		d := s.Stabilize(1000.5, &rng, ptr(1000.0))
		assert.False(t, d.Rejected)
		assert.False(t, d.Floored)
		assert.InDelta(t, 1000.6, d.Value, 1e-9)
	})

	t.Run("recentres even when rejected", func(t *testing.T) {
		d := s.Stabilize(1400, &ExpectedRange{-1000, 1000}, ptr(100))
		assert.True(t, d.Rejected)
		assert.True(t, d.RangeChanged)
	})
}

func TestStabilizeMonotonicFloor(t *testing.T) {
	s := newDefault(t)
	d := s.Stabilize(999.8, &ExpectedRange{0, 2000}, ptr(1000.0))
	assert.False(t, d.Rejected)
	assert.True(t, d.Floored)
	assert.Equal(t, 1000.0, d.Value)
}

func TestRelativePolicy(t *testing.T) {
	p := Policy{RoundStep: 0.1, Outlier: OutlierRelative, Threshold: 0.01, Floor: 1}
	assert.False(t, p.IsOutlier(1000, 1009))
	assert.True(t, p.IsOutlier(1000, 1011))
	assert.InDelta(t, 1234.6, p.Round(1234.63), 1e-9)
}

func TestRelativePolicyFromZero(t *testing.T) {
	p := Policy{RoundStep: 0.2, Outlier: OutlierRelative, Threshold: 0.01, Floor: 1}
	assert.False(t, p.IsOutlier(0, 0.2))
	assert.False(t, p.IsOutlier(0, 1))
	assert.True(t, p.IsOutlier(0, 1.2))

	s, err := NewStabilizer(p)
	require.NoError(t, err)
	last := 0.0
	for _, candidate := range []float64{0.2, 0.4, 0.8} {
		d := s.Stabilize(candidate, nil, &last)
		require.False(t, d.Rejected, "candidate %v after %v", candidate, last)
		last = d.Value
	}
	assert.InDelta(t, 0.8, last, 1e-9)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := []Policy{
		{RoundStep: 0, Outlier: OutlierAbsolute, Threshold: 1},
		{RoundStep: 0.2, Outlier: "median", Threshold: 1},
		{RoundStep: 0.2, Outlier: OutlierRelative, Threshold: 0},
		{RoundStep: 0.2, Outlier: OutlierRelative, Threshold: 0.01, Floor: 0},
	}
	for _, p := range bad {
		_, err := NewStabilizer(p)
		assert.Error(t, err, "%+v", p)
	}
}
