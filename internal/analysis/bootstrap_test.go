package analysis

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noGuard() error          { return nil }
func noTick(int)              {}
func seededRNG(s int64) *rand.Rand { return rand.New(rand.NewSource(s)) }

func TestBootstrapP95_Deterministic(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	first, err := bootstrapP95(seededRNG(42), data, 200, noGuard, noTick)
	require.NoError(t, err)
	second, err := bootstrapP95(seededRNG(42), data, 200, noGuard, noTick)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 200)
	for _, s := range first {
		assert.GreaterOrEqual(t, s, 10.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestBootstrapP95_GuardAborts(t *testing.T) {
	abort := errors.New("cancelled")
	guard := func() error { return abort }

	samples, err := bootstrapP95(seededRNG(1), []float64{1, 2, 3}, 100, guard, noTick)
	assert.ErrorIs(t, err, abort)
	assert.Nil(t, samples)
}

func TestBootstrapP95_TicksAtCheckpoints(t *testing.T) {
	var ticks []int
	tick := func(done int) { ticks = append(ticks, done) }

	_, err := bootstrapP95(seededRNG(1), []float64{1, 2, 3}, 120, noGuard, tick)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 50, 100, 120}, ticks)
}

func TestTailPValue(t *testing.T) {
	samples := []float64{1, 2, 3, 4}

	assert.Equal(t, 0.0, tailPValue(samples, 0))    // fully above reference
	assert.Equal(t, 0.0, tailPValue(samples, 10))   // fully below reference
	assert.Equal(t, 1.0, tailPValue(samples, 2.5))  // centered
	assert.Equal(t, 1.0, tailPValue(nil, 5))
}

func TestConfidenceInterval(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i + 1)
	}

	lower, upper := confidenceInterval(samples, 0.1)
	assert.Equal(t, 5.0, lower)
	assert.Equal(t, 95.0, upper)
}

func TestCompareP95ToThreshold(t *testing.T) {
	// Distribution entirely above the threshold: significant difference.
	samples := []float64{90, 95, 100, 105, 110}

	decision, metrics := compareP95ToThreshold(samples, 100, 50, 0.05, 500)

	require.NotNil(t, decision.PValue)
	require.NotNil(t, decision.Significant)
	assert.Equal(t, 0.0, *decision.PValue)
	assert.True(t, *decision.Significant)
	assert.Equal(t, 0.05, decision.Alpha)
	assert.Equal(t, 500, metrics.SampleSize)
	assert.Equal(t, 100.0, *metrics.P95)
	assert.Equal(t, 50.0, *metrics.Threshold)
	assert.LessOrEqual(t, *metrics.CILower, *metrics.CIUpper)
}

func TestCompareP95s_NoDifference(t *testing.T) {
	samples := []float64{10, 11, 12, 13, 14}

	decision, metrics := compareP95s(samples, samples, 12, 12, 0.05, 100)

	require.NotNil(t, decision.PValue)
	assert.Equal(t, 1.0, *decision.PValue) // all pairwise diffs are zero
	assert.False(t, *decision.Significant)
	assert.Equal(t, 12.0, *metrics.P95)
	assert.Equal(t, 12.0, *metrics.P952)
}

func TestSubsample(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	t.Run("size within range draws without replacement", func(t *testing.T) {
		out := subsample(seededRNG(7), data, 3)
		require.Len(t, out, 3)
		seen := make(map[float64]bool)
		for _, v := range out {
			assert.Contains(t, data, v)
			assert.False(t, seen[v])
			seen[v] = true
		}
	})

	t.Run("size at or above length returns input", func(t *testing.T) {
		assert.Equal(t, data, subsample(seededRNG(7), data, 5))
		assert.Equal(t, data, subsample(seededRNG(7), data, 10))
	})

	t.Run("non-positive size returns input", func(t *testing.T) {
		assert.Equal(t, data, subsample(seededRNG(7), data, 0))
	})
}
