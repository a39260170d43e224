package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	s := &Series{
		Values:            []float64{1, 2, 2, 3, 4},
		DroppedNonNumeric: 1,
		DroppedOutOfRange: 2,
	}

	d := Describe(s)

	assert.Equal(t, 5, d.SampleSize)
	assert.InDelta(t, 2.4, d.Mean, 1e-9)
	assert.Equal(t, 2.0, d.Median)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 4.0, d.Max)
	assert.Equal(t, 2.0, d.Mode)
	assert.Equal(t, 4.0, d.P95)
	assert.Greater(t, d.StdDev, 0.0)
	assert.Equal(t, 1, d.DroppedNonNumeric)
	assert.Equal(t, 2, d.DroppedOutOfRange)
}

func TestDescribe_SingleValue(t *testing.T) {
	d := Describe(&Series{Values: []float64{7}})

	assert.Equal(t, 1, d.SampleSize)
	assert.Equal(t, 7.0, d.Mean)
	assert.Equal(t, 7.0, d.Median)
	assert.Zero(t, d.StdDev)
	assert.Zero(t, d.Skewness)
}

func TestDescribe_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Describe(&Series{Values: values})
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestMode_TiesResolveToSmallest(t *testing.T) {
	assert.Equal(t, 1.0, mode([]float64{1, 1, 2, 2, 3}))
	assert.Equal(t, 5.0, mode([]float64{5}))
	assert.Equal(t, 4.0, mode([]float64{1, 2, 4, 4, 4}))
}
