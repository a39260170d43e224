package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PlotToggles mirrors the client-facing plot switches. Pointers distinguish
// "not provided" from an explicit false.
type PlotToggles struct {
	Histogram *bool `json:"histogram,omitempty"`
	Boxplot   *bool `json:"boxplot,omitempty"`
	KDE       *bool `json:"kde,omitempty"`
}

// ConfigOverrides is the JSON object a client may submit alongside a job.
// Unknown fields are rejected.
type ConfigOverrides struct {
	Alpha               *float64     `json:"alpha,omitempty"`
	Threshold           *float64     `json:"threshold,omitempty"`
	BootstrapIterations *int         `json:"bootstrapIterations,omitempty"`
	PermutationCount    *int         `json:"permutationCount,omitempty"`
	SampleSize          *int         `json:"sampleSize,omitempty"`
	OutlierLowerBound   *float64     `json:"outlierLowerBound,omitempty"`
	OutlierUpperBound   *float64     `json:"outlierUpperBound,omitempty"`
	DescriptiveEnabled  *bool        `json:"descriptiveEnabled,omitempty"`
	CreateLog           *bool        `json:"createLog,omitempty"`
	CleanAll            *bool        `json:"cleanAll,omitempty"`
	Plots               *PlotToggles `json:"plots,omitempty"`
}

// ParseConfigOverrides decodes the submitted config JSON strictly.
func ParseConfigOverrides(raw []byte) (ConfigOverrides, error) {
	var overrides ConfigOverrides
	if len(bytes.TrimSpace(raw)) == 0 {
		return overrides, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&overrides); err != nil {
		return overrides, fmt.Errorf("invalid config JSON: %w", err)
	}
	return overrides, nil
}

// PlotFlags is the resolved form of PlotToggles.
type PlotFlags struct {
	Histogram bool `json:"histogram"`
	Boxplot   bool `json:"boxplot"`
	KDE       bool `json:"kde"`
}

// Any reports whether at least one plot kind is enabled.
func (f PlotFlags) Any() bool {
	return f.Histogram || f.Boxplot || f.KDE
}

// EffectiveConfig is the merged configuration frozen on the job record at
// creation time. Workers read it back verbatim, which guarantees a rerun of
// the same record reproduces the same analysis parameters.
type EffectiveConfig struct {
	Alpha               float64  `json:"alpha"`
	Threshold           *float64 `json:"threshold,omitempty"`
	BootstrapIterations int      `json:"bootstrapIterations"`
	PermutationCount    int      `json:"permutationCount"`
	SampleSize          *int     `json:"sampleSize,omitempty"`
	OutlierLowerBound   float64  `json:"outlierLowerBound"`
	OutlierUpperBound   *float64 `json:"outlierUpperBound,omitempty"`
	DescriptiveEnabled  bool     `json:"descriptiveEnabled"`
	CreateLog           bool     `json:"createLog"`
	CleanAll            bool     `json:"cleanAll"`
	Plots               PlotFlags `json:"plots"`

	// Populated for KW_PERMUTATION jobs during archive classification.
	KWLayout string   `json:"kwLayout,omitempty"`
	KWGroups []string `json:"kwGroups,omitempty"`
}

// Merge overlays non-nil override fields on top of the defaults.
func (c EffectiveConfig) Merge(o ConfigOverrides) EffectiveConfig {
	merged := c
	if o.Alpha != nil {
		merged.Alpha = *o.Alpha
	}
	if o.Threshold != nil {
		merged.Threshold = o.Threshold
	}
	if o.BootstrapIterations != nil {
		merged.BootstrapIterations = *o.BootstrapIterations
	}
	if o.PermutationCount != nil {
		merged.PermutationCount = *o.PermutationCount
	}
	if o.SampleSize != nil {
		merged.SampleSize = o.SampleSize
	}
	if o.OutlierLowerBound != nil {
		merged.OutlierLowerBound = *o.OutlierLowerBound
	}
	if o.OutlierUpperBound != nil {
		merged.OutlierUpperBound = o.OutlierUpperBound
	}
	if o.DescriptiveEnabled != nil {
		merged.DescriptiveEnabled = *o.DescriptiveEnabled
	}
	if o.CreateLog != nil {
		merged.CreateLog = *o.CreateLog
	}
	if o.CleanAll != nil {
		merged.CleanAll = *o.CleanAll
	}
	if o.Plots != nil {
		if o.Plots.Histogram != nil {
			merged.Plots.Histogram = *o.Plots.Histogram
		}
		if o.Plots.Boxplot != nil {
			merged.Plots.Boxplot = *o.Plots.Boxplot
		}
		if o.Plots.KDE != nil {
			merged.Plots.KDE = *o.Plots.KDE
		}
	}
	return merged
}
