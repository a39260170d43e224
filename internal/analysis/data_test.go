package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeries_CleansInput(t *testing.T) {
	path := writeCSV(t, "latency_ms\n12.5\nabc\n-3\n7,extra\n\n9.25\n")

	s, err := LoadSeries(path, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{12.5, 7, 9.25}, s.Values)
	assert.Equal(t, 2, s.DroppedNonNumeric) // header and "abc"
	assert.Equal(t, 1, s.DroppedOutOfRange) // negative value
	assert.Equal(t, "data.csv", s.Source)
}

func TestLoadSeries_OutlierBounds(t *testing.T) {
	path := writeCSV(t, "1\n5\n50\n150\n")

	upper := 100.0
	s, err := LoadSeries(path, 2, &upper)
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 50}, s.Values)
	assert.Equal(t, 2, s.DroppedOutOfRange)
}

func TestLoadSeries_EmptyAfterCleaning(t *testing.T) {
	path := writeCSV(t, "header\nnot-a-number\n")

	_, err := LoadSeries(path, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no numeric values")
}

func TestLoadSeries_MissingFile(t *testing.T) {
	_, err := LoadSeries(filepath.Join(t.TempDir(), "absent.csv"), 0, nil)
	assert.Error(t, err)
}

func TestValidateCSV(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"numeric rows", "1\n2\n3\n", false},
		{"header plus data", "value\n42\n", false},
		{"semicolon separated", "3;junk\n", false},
		{"only text", "a\nb\n", true},
		{"empty", "", true},
		{"only negatives", "-1\n-2\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCSV(strings.NewReader(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteCleaned_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleaned.csv")
	require.NoError(t, WriteCleaned(path, []float64{1.5, 2, 3.25}))

	s, err := LoadSeries(path, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 3.25}, s.Values)
	assert.Zero(t, s.DroppedNonNumeric)
}
