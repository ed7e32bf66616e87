// Bounded price history and trend analysis over recent samples.
package economy

import "math"

// PricePoint is one recorded trade or quote sample.
type PricePoint struct {
	Timestamp float64 `json:"t"` // sim seconds
	Price     int64   `json:"price"`
	Volume    int64   `json:"volume"`
}

// PriceHistory is a ring buffer of price points with a fixed cap.
type PriceHistory struct {
	points []PricePoint
	cap    int
}

// NewPriceHistory creates an empty history bounded at cap entries.
func NewPriceHistory(cap int) *PriceHistory {
	return &PriceHistory{cap: cap}
}

// Append adds a point, dropping the oldest once full.
func (h *PriceHistory) Append(p PricePoint) {
	h.points = append(h.points, p)
	if len(h.points) > h.cap {
		h.points = h.points[len(h.points)-h.cap:]
	}
}

// Len returns the number of stored points.
func (h *PriceHistory) Len() int { return len(h.points) }

// Points returns the stored points oldest-first. The slice is shared;
// callers must not mutate it.
func (h *PriceHistory) Points() []PricePoint { return h.points }

// Recent returns up to the last n points oldest-first.
func (h *PriceHistory) Recent(n int) []PricePoint {
	if n >= len(h.points) {
		return h.points
	}
	return h.points[len(h.points)-n:]
}

// Trend classifies recent price direction.
type Trend uint8

const (
	TrendStable Trend = iota
	TrendRising
	TrendFalling
	TrendVolatile
)

func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	case TrendVolatile:
		return "volatile"
	default:
		return "stable"
	}
}

const trendEpsilon = 1e-3

// Analyze runs a least-squares fit over the last window points.
// Volatile wins when residual spread exceeds volThreshold of the mean;
// otherwise the slope sign relative to the mean decides direction.
// Slope is returned in price units per sample, normalized by mean price.
func (h *PriceHistory) Analyze(window int, volThreshold float64) (Trend, float64) {
	pts := h.Recent(window)
	if len(pts) < 3 {
		return TrendStable, 0
	}

	n := float64(len(pts))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range pts {
		x, y := float64(i), float64(p.Price)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	mean := sumY / n
	if mean <= 0 {
		return TrendStable, 0
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable, 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// Residual standard deviation around the fitted line.
	var ss float64
	for i, p := range pts {
		resid := float64(p.Price) - (intercept + slope*float64(i))
		ss += resid * resid
	}
	residStd := math.Sqrt(ss / n)

	momentum := slope / mean
	if residStd > volThreshold*mean {
		return TrendVolatile, momentum
	}
	if momentum > trendEpsilon {
		return TrendRising, momentum
	}
	if momentum < -trendEpsilon {
		return TrendFalling, momentum
	}
	return TrendStable, momentum
}

// CoefficientOfVariation measures volatility over the last window points.
func (h *PriceHistory) CoefficientOfVariation(window int) float64 {
	pts := h.Recent(window)
	if len(pts) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += float64(p.Price)
	}
	mean := sum / float64(len(pts))
	if mean <= 0 {
		return 0
	}
	var ss float64
	for _, p := range pts {
		d := float64(p.Price) - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(pts))) / mean
}
