package analysis

import (
	"math"
	"math/rand"
	"sort"
)

// checkpointEvery bounds how many resampling iterations run between two
// cancellation/timeout/progress checkpoints. Coarser checkpoints mean slower
// cancellation response, which is the accepted trade-off against
// interrupting numeric work mid-loop.
const checkpointEvery = 50

// bootstrapP95 draws `iterations` bootstrap resamples of data and records
// the 95th percentile of each. The guard and progress callbacks fire at
// checkpoint boundaries.
func bootstrapP95(rng *rand.Rand, data []float64, iterations int, guard GuardFunc, tick func(done int)) ([]float64, error) {
	n := len(data)
	samples := make([]float64, iterations)
	resample := make([]float64, n)

	for i := 0; i < iterations; i++ {
		if i%checkpointEvery == 0 {
			if err := guard(); err != nil {
				return nil, err
			}
			tick(i)
		}
		for j := range resample {
			resample[j] = data[rng.Intn(n)]
		}
		sort.Float64s(resample)
		samples[i] = quantile(resample, 0.95)
	}
	if err := guard(); err != nil {
		return nil, err
	}
	tick(iterations)
	return samples, nil
}

// tailPValue is the two-sided bootstrap tail probability of the distribution
// relative to a reference value.
func tailPValue(samples []float64, reference float64) float64 {
	if len(samples) == 0 {
		return 1
	}
	var low, high int
	for _, s := range samples {
		if s <= reference {
			low++
		}
		if s >= reference {
			high++
		}
	}
	n := float64(len(samples))
	p := 2 * math.Min(float64(low)/n, float64(high)/n)
	return math.Min(p, 1)
}

// confidenceInterval returns the percentile CI of the bootstrap distribution
// for the given alpha.
func confidenceInterval(samples []float64, alpha float64) (float64, float64) {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return quantile(sorted, alpha/2), quantile(sorted, 1-alpha/2)
}

// marginOfErrorPct expresses the CI half-width as a percentage of the point
// estimate.
func marginOfErrorPct(lower, upper, estimate float64) float64 {
	if estimate == 0 {
		return 0
	}
	return (upper - lower) / 2 / estimate * 100
}

// compareP95ToThreshold tests the bootstrap p95 distribution of a single
// dataset against a fixed threshold.
func compareP95ToThreshold(samples []float64, observedP95, threshold, alpha float64, sampleSize int) (Decision, Metrics) {
	p := tailPValue(samples, threshold)
	significant := p < alpha
	lower, upper := confidenceInterval(samples, alpha)

	decision := Decision{Alpha: alpha, PValue: &p, Significant: &significant}
	metrics := Metrics{
		SampleSize:       sampleSize,
		P95:              floatPtr(observedP95),
		CILower:          floatPtr(lower),
		CIUpper:          floatPtr(upper),
		MarginOfErrorPct: floatPtr(marginOfErrorPct(lower, upper, observedP95)),
		Threshold:        floatPtr(threshold),
	}
	return decision, metrics
}

// compareP95s tests whether two datasets differ in their p95 by examining
// the bootstrap distribution of pairwise differences.
func compareP95s(samples1, samples2 []float64, observed1, observed2, alpha float64, sampleSize int) (Decision, Metrics) {
	n := len(samples1)
	if len(samples2) < n {
		n = len(samples2)
	}
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = samples1[i] - samples2[i]
	}

	p := tailPValue(diffs, 0)
	significant := p < alpha
	lower1, upper1 := confidenceInterval(samples1, alpha)
	lower2, upper2 := confidenceInterval(samples2, alpha)

	decision := Decision{Alpha: alpha, PValue: &p, Significant: &significant}
	metrics := Metrics{
		SampleSize:        sampleSize,
		P95:               floatPtr(observed1),
		P952:              floatPtr(observed2),
		CILower:           floatPtr(lower1),
		CIUpper:           floatPtr(upper1),
		CILower2:          floatPtr(lower2),
		CIUpper2:          floatPtr(upper2),
		MarginOfErrorPct:  floatPtr(marginOfErrorPct(lower1, upper1, observed1)),
		MarginOfErrorPct2: floatPtr(marginOfErrorPct(lower2, upper2, observed2)),
	}
	return decision, metrics
}

// subsample draws size elements without replacement; when the series is
// already small enough it is returned as-is.
func subsample(rng *rand.Rand, data []float64, size int) []float64 {
	if size <= 0 || size >= len(data) {
		return data
	}
	perm := rng.Perm(len(data))
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = data[perm[i]]
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }
