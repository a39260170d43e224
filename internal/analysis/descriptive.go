package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Descriptive is the summary block computed per dataset.
type Descriptive struct {
	SampleSize        int     `json:"sampleSize"`
	Mean              float64 `json:"mean"`
	Median            float64 `json:"median"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	StdDev            float64 `json:"stdDev"`
	Skewness          float64 `json:"skewness"`
	Mode              float64 `json:"mode"`
	P95               float64 `json:"p95"`
	DroppedNonNumeric int     `json:"droppedNonNumeric,omitempty"`
	DroppedOutOfRange int     `json:"droppedOutOfRange,omitempty"`
}

// Describe computes descriptive statistics for a cleaned series.
func Describe(s *Series) Descriptive {
	sorted := append([]float64(nil), s.Values...)
	sort.Float64s(sorted)

	d := Descriptive{
		SampleSize:        len(sorted),
		Mean:              stat.Mean(sorted, nil),
		Median:            quantile(sorted, 0.5),
		Min:               sorted[0],
		Max:               sorted[len(sorted)-1],
		Mode:              mode(sorted),
		P95:               quantile(sorted, 0.95),
		DroppedNonNumeric: s.DroppedNonNumeric,
		DroppedOutOfRange: s.DroppedOutOfRange,
	}
	if len(sorted) > 1 {
		d.StdDev = stat.StdDev(sorted, nil)
		d.Skewness = stat.Skew(sorted, nil)
	}
	if math.IsNaN(d.Skewness) {
		d.Skewness = 0
	}
	return d
}

// quantile is the empirical quantile of an already sorted sample.
func quantile(sorted []float64, p float64) float64 {
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// mode returns the most frequent value of a sorted sample; ties resolve to
// the smallest value.
func mode(sorted []float64) float64 {
	best := sorted[0]
	bestCount := 0
	current := sorted[0]
	count := 0
	for _, v := range sorted {
		if v == current {
			count++
		} else {
			if count > bestCount {
				best, bestCount = current, count
			}
			current, count = v, 1
		}
	}
	if count > bestCount {
		best = current
	}
	return best
}
