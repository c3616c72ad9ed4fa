package dial

// Params holds tuning for dial location and angle estimation.
type Params struct {
	// Gaussian blur kernel size applied before circle detection (odd)
	BlurKernel int

	// Hough circle detection
	HoughDP      float64 // Inverse ratio of accumulator resolution
	HoughMinDist float64 // Minimum distance between circle centers (pixels)
	HoughParam1  float64 // Canny edge detector high threshold
	HoughParam2  float64 // Accumulator threshold for circle detection
	MinRadius    int     // Smallest dial radius (pixels)
	MaxRadius    int     // Largest dial radius (pixels)

	// Angle estimation
	DialPadding int // Pixels added to the detected radius when cropping a dial
	RimWidth    int // Width of the outer annulus ignored as rim glare
	RayWidth    int // Thickness of each sampling ray
	AngleStep   int // Degrees between sampled rays
}

// DefaultParams returns parameters tuned for the reference meter photographed
// at 1280x1024.
func DefaultParams() Params {
	return Params{
		BlurKernel: 5,

		HoughDP:      1,
		HoughMinDist: 40,
		HoughParam1:  100,
		HoughParam2:  100,
		MinRadius:    20,
		MaxRadius:    300,

		DialPadding: 5,
		RimWidth:    20,
		RayWidth:    2,
		AngleStep:   1,
	}
}

// WithRadiusRange returns a copy of params accepting dials with radii in [minR, maxR].
func (p Params) WithRadiusRange(minR, maxR int) Params {
	p.MinRadius = minR
	p.MaxRadius = maxR
	if p.MaxRadius < p.MinRadius {
		p.MaxRadius = p.MinRadius * 2
	}
	return p
}

// WithHough returns a copy of params with custom Hough thresholds.
func (p Params) WithHough(minDist, param1, param2 float64) Params {
	p.HoughMinDist = minDist
	p.HoughParam1 = param1
	p.HoughParam2 = param2
	return p
}

// WithRim returns a copy of params ignoring a rim of the given width.
func (p Params) WithRim(width int) Params {
	p.RimWidth = width
	return p
}
