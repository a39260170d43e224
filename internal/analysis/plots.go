package analysis

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/smartcomp/smartcomp-be/internal/domain"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// renderPlots writes the requested plot kinds for a dataset into the job's
// plots directory and returns artifact references relative to the output
// area.
func renderPlots(flags domain.PlotFlags, label string, values []float64, plotsDir string) ([]PlotRef, error) {
	var refs []PlotRef

	if flags.Histogram {
		name := fmt.Sprintf("%s_histogram.png", label)
		if err := saveHistogram(values, filepath.Join(plotsDir, name)); err != nil {
			return nil, err
		}
		refs = append(refs, PlotRef{Kind: "histogram", ArtifactName: "plots/" + name})
	}
	if flags.Boxplot {
		name := fmt.Sprintf("%s_boxplot.png", label)
		if err := saveBoxPlot(values, filepath.Join(plotsDir, name)); err != nil {
			return nil, err
		}
		refs = append(refs, PlotRef{Kind: "boxplot", ArtifactName: "plots/" + name})
	}
	if flags.KDE {
		name := fmt.Sprintf("%s_kde.png", label)
		if err := saveKDE(values, filepath.Join(plotsDir, name)); err != nil {
			return nil, err
		}
		refs = append(refs, PlotRef{Kind: "kde", ArtifactName: "plots/" + name})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ArtifactName < refs[j].ArtifactName })
	return refs, nil
}

func saveHistogram(values []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Histogram"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(values), 30)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	return nil
}

func saveBoxPlot(values []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Box plot"

	box, err := plotter.NewBoxPlot(vg.Points(40), 0, plotter.Values(values))
	if err != nil {
		return fmt.Errorf("failed to build box plot: %w", err)
	}
	p.Add(box)
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save box plot: %w", err)
	}
	return nil
}

func saveKDE(values []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Density"
	p.Y.Label.Text = "density"

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	bandwidth := scottBandwidth(sorted)

	f := plotter.NewFunction(func(x float64) float64 {
		return gaussianKDE(sorted, x, bandwidth)
	})
	f.Samples = 200
	p.Add(f)

	span := sorted[len(sorted)-1] - sorted[0]
	p.X.Min = sorted[0] - span*0.1
	p.X.Max = sorted[len(sorted)-1] + span*0.1

	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save density plot: %w", err)
	}
	return nil
}

// scottBandwidth is Scott's rule of thumb for Gaussian kernels.
func scottBandwidth(sorted []float64) float64 {
	n := float64(len(sorted))
	sigma := stat.StdDev(sorted, nil)
	if sigma == 0 || math.IsNaN(sigma) {
		sigma = 1
	}
	return 1.06 * sigma * math.Pow(n, -0.2)
}

func gaussianKDE(sorted []float64, x, bandwidth float64) float64 {
	n := float64(len(sorted))
	var sum float64
	for _, xi := range sorted {
		u := (x - xi) / bandwidth
		sum += math.Exp(-0.5*u*u) / math.Sqrt(2*math.Pi)
	}
	return sum / (n * bandwidth)
}
