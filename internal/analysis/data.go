package analysis

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Series is one cleaned numeric sample with cleaning counters.
type Series struct {
	Source            string
	Values            []float64
	DroppedNonNumeric int
	DroppedOutOfRange int
}

// Len returns the number of retained observations.
func (s *Series) Len() int { return len(s.Values) }

// LoadSeries reads the first column of a CSV file as a numeric series.
// Non-numeric rows (including a header line) and negative values are dropped
// with counters; lower/upper outlier bounds filter the remainder. An empty
// result after cleaning is an error.
func LoadSeries(path string, lower float64, upper *float64) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	series, err := readSeries(f, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	series.Source = filepath.Base(path)
	return series, nil
}

func readSeries(r io.Reader, lower float64, upper *float64) (*Series, error) {
	series := &Series{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		field := line
		if idx := strings.IndexAny(line, ",;\t"); idx >= 0 {
			field = line[:idx]
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			series.DroppedNonNumeric++
			continue
		}
		if value < 0 {
			series.DroppedOutOfRange++
			continue
		}
		if value < lower {
			series.DroppedOutOfRange++
			continue
		}
		if upper != nil && value > *upper {
			series.DroppedOutOfRange++
			continue
		}
		series.Values = append(series.Values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(series.Values) == 0 {
		return nil, fmt.Errorf("no numeric values after cleaning")
	}
	return series, nil
}

// ValidateCSV checks at submission time that a CSV upload carries at least
// one usable numeric value, without any outlier filtering.
func ValidateCSV(r io.Reader) error {
	_, err := readSeries(r, 0, nil)
	return err
}

// WriteCleaned persists a cleaned series as a single-column CSV.
func WriteCleaned(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range values {
		if _, err := fmt.Fprintf(w, "%g\n", v); err != nil {
			return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
		}
	}
	return w.Flush()
}
