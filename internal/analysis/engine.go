// Package analysis implements the statistical flows behind each job type:
// bootstrap p95 testing, Kruskal-Wallis permutation testing and descriptive
// summaries. Long loops expose checkpoints where the caller's guard callback
// can abort the run cooperatively.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/storage"
)

// ProgressFunc receives progress updates at a bounded cadence.
type ProgressFunc func(percent float64, step, message string)

// GuardFunc is polled at every checkpoint; a non-nil return aborts the run.
type GuardFunc func() error

// Engine runs one analysis per call. It is stateless and safe for
// concurrent use by multiple workers.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an analysis engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run executes the analysis for a claimed job and returns the normalized
// result document. Artifacts are written under the job's output area. The
// run is deterministic: the RNG is seeded from the job id.
func (e *Engine) Run(ctx context.Context, job *domain.Job, cfg domain.EffectiveConfig, paths storage.JobPaths, progress ProgressFunc, guard GuardFunc) (json.RawMessage, error) {
	rng := rand.New(rand.NewSource(seedFromID(job.ID)))

	checkpoint := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return guard()
	}

	run := &jobRun{
		engine:   e,
		job:      job,
		cfg:      cfg,
		paths:    paths,
		progress: progress,
		guard:    checkpoint,
		rng:      rng,
	}

	var (
		doc *ResultDocument
		err error
	)
	if job.Type == domain.JobTypeKWPermutation {
		doc, err = run.kwPermutation()
	} else {
		doc, err = run.bootstrapFlows()
	}
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(paths.OutputDir, "results.json"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write results.json: %w", err)
	}
	if cfg.CreateLog {
		if err := writeRunLog(filepath.Join(paths.OutputDir, "analysis.log"), doc); err != nil {
			e.logger.Warn("Failed to write analysis log",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}
	return raw, nil
}

// writeRunLog renders a human-readable run summary next to the JSON results.
func writeRunLog(path string, doc *ResultDocument) error {
	var b strings.Builder
	fmt.Fprintf(&b, "job %s (%s)\n", doc.JobID, doc.JobType)
	if doc.Decision != nil {
		fmt.Fprintf(&b, "alpha=%g", doc.Decision.Alpha)
		if doc.Decision.PValue != nil {
			fmt.Fprintf(&b, " pValue=%g", *doc.Decision.PValue)
		}
		if doc.Decision.Significant != nil {
			fmt.Fprintf(&b, " significant=%t", *doc.Decision.Significant)
		}
		b.WriteString("\n")
	}
	if doc.Omnibus != nil {
		fmt.Fprintf(&b, "H=%g permutations=%d totalN=%d\n",
			doc.Omnibus.HStatistic, doc.Omnibus.Permutations, doc.Omnibus.TotalN)
	}
	if doc.Descriptive != nil {
		fmt.Fprintf(&b, "n=%d mean=%g median=%g p95=%g\n",
			doc.Descriptive.SampleSize, doc.Descriptive.Mean, doc.Descriptive.Median, doc.Descriptive.P95)
	}
	for _, w := range doc.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

type jobRun struct {
	engine   *Engine
	job      *domain.Job
	cfg      domain.EffectiveConfig
	paths    storage.JobPaths
	progress ProgressFunc
	guard    GuardFunc
	rng      *rand.Rand
	warnings []string
}

func (r *jobRun) bootstrapFlows() (*ResultDocument, error) {
	r.progress(5, "prepare", "Preparing inputs")
	if err := r.guard(); err != nil {
		return nil, err
	}

	cleaned, err := r.cleanInputs()
	if err != nil {
		return nil, err
	}
	r.progress(25, "clean", "Inputs cleaned")
	if err := r.guard(); err != nil {
		return nil, err
	}

	doc := &ResultDocument{
		JobID:   r.job.ID,
		JobType: string(r.job.Type),
		Plots:   []PlotRef{},
	}

	descriptiveWanted := r.cfg.DescriptiveEnabled || r.job.Type == domain.JobTypeDescriptiveOnly
	if descriptiveWanted {
		d := Describe(cleaned[0])
		doc.Descriptive = &d
		r.progress(40, "descriptive", "Descriptive analysis complete")
		if err := r.guard(); err != nil {
			return nil, err
		}
	}

	if r.cfg.Plots.Any() {
		for i, series := range cleaned {
			refs, err := renderPlots(r.cfg.Plots, fmt.Sprintf("dataset%d", i+1), series.Values, r.paths.PlotsDir)
			if err != nil {
				return nil, err
			}
			doc.Plots = append(doc.Plots, refs...)
		}
	}

	if r.job.Type == domain.JobTypeDescriptiveOnly {
		doc.Warnings = r.warnings
		r.progress(90, "finalize", "Finalizing outputs")
		return doc, r.guard()
	}

	sampleSize := r.effectiveSampleSize(cleaned)
	samples := make([][]float64, len(cleaned))
	for i, series := range cleaned {
		samples[i] = subsample(r.rng, series.Values, sampleSize)
		name := fmt.Sprintf("file%d_sampled.csv", i+1)
		if err := WriteCleaned(filepath.Join(r.paths.OutputDir, name), samples[i]); err != nil {
			return nil, err
		}
	}
	r.progress(50, "sampling", "Sampling ready")
	if err := r.guard(); err != nil {
		return nil, err
	}

	iterations := r.cfg.BootstrapIterations
	if iterations < 1 {
		iterations = 1
	}

	if r.job.Type == domain.JobTypeBootstrapSingle {
		dist, err := bootstrapP95(r.rng, samples[0], iterations, r.guard, r.loopTicker("bootstrap", iterations, 55, 25))
		if err != nil {
			return nil, err
		}
		observed := sortedQuantile(samples[0], 0.95)
		threshold := 0.0
		if r.cfg.Threshold != nil {
			threshold = *r.cfg.Threshold
		}
		decision, metrics := compareP95ToThreshold(dist, observed, threshold, r.cfg.Alpha, sampleSize)
		doc.Decision = &decision
		doc.Metrics = &metrics
	} else {
		if len(samples) < 2 {
			return nil, fmt.Errorf("dual bootstrap requires two input files")
		}
		dist1, err := bootstrapP95(r.rng, samples[0], iterations, r.guard, r.loopTicker("bootstrap", iterations, 55, 12.5))
		if err != nil {
			return nil, err
		}
		dist2, err := bootstrapP95(r.rng, samples[1], iterations, r.guard, r.loopTicker("bootstrap", iterations, 67.5, 12.5))
		if err != nil {
			return nil, err
		}
		observed1 := sortedQuantile(samples[0], 0.95)
		observed2 := sortedQuantile(samples[1], 0.95)
		decision, metrics := compareP95s(dist1, dist2, observed1, observed2, r.cfg.Alpha, sampleSize)
		doc.Decision = &decision
		doc.Metrics = &metrics
	}

	r.progress(85, "bootstrap", "Bootstrap complete")
	doc.Warnings = r.warnings
	r.progress(90, "finalize", "Finalizing outputs")
	return doc, r.guard()
}

func (r *jobRun) kwPermutation() (*ResultDocument, error) {
	r.progress(10, "prepare", "Preparing KW groups")
	if err := r.guard(); err != nil {
		return nil, err
	}
	if len(r.cfg.KWGroups) == 0 {
		return nil, fmt.Errorf("KW permutation requires classified groups")
	}

	upper := r.cfg.OutlierUpperBound
	lower := r.cfg.OutlierLowerBound

	groupArrays := make([][]float64, 0, len(r.cfg.KWGroups))
	groupResults := make([]KWGroupResult, 0, len(r.cfg.KWGroups))

	for _, groupName := range r.cfg.KWGroups {
		groupDir := filepath.Join(r.paths.InputDir, groupName)
		files, err := filepath.Glob(filepath.Join(groupDir, "*.csv"))
		if err != nil || len(files) == 0 {
			return nil, fmt.Errorf("no CSV files found for group %s", groupName)
		}
		sort.Strings(files)

		var combined []float64
		fileEntries := make([]KWGroupFile, 0, len(files))
		for _, file := range files {
			series, err := LoadSeries(file, lower, upper)
			if err != nil {
				return nil, err
			}
			stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			cleanedName := fmt.Sprintf("%s_%s_cleaned.csv", groupName, stem)
			if err := WriteCleaned(filepath.Join(r.paths.OutputDir, cleanedName), series.Values); err != nil {
				return nil, err
			}
			fileEntries = append(fileEntries, KWGroupFile{
				FileName: filepath.Base(file),
				N:        series.Len(),
				P95:      sortedQuantile(series.Values, 0.95),
				Median:   sortedQuantile(series.Values, 0.5),
			})
			combined = append(combined, series.Values...)
			if err := r.guard(); err != nil {
				return nil, err
			}
		}

		groupArrays = append(groupArrays, combined)
		groupResults = append(groupResults, KWGroupResult{GroupName: groupName, Files: fileEntries})
	}

	iterations := r.cfg.PermutationCount
	if iterations < 1 {
		iterations = 1
	}
	result, err := permutationTest(r.rng, groupArrays, iterations, r.guard, r.loopTicker("permutation", iterations, 30, 50))
	if err != nil {
		return nil, err
	}

	significant := result.PValue < r.cfg.Alpha
	doc := &ResultDocument{
		JobID:   r.job.ID,
		JobType: string(r.job.Type),
		Decision: &Decision{
			Alpha:       r.cfg.Alpha,
			PValue:      floatPtr(result.PValue),
			Significant: &significant,
		},
		Omnibus: &Omnibus{
			HStatistic:    result.HStatistic,
			Permutations:  result.Iterations,
			TotalN:        result.TotalN,
			TieCorrection: result.TieCorrection,
			GroupSizes:    result.GroupSizes,
		},
		Groups:   groupResults,
		Plots:    []PlotRef{},
		Warnings: r.warnings,
	}
	r.progress(90, "finalize", "KW artifacts ready")
	return doc, r.guard()
}

// cleanInputs loads file1.csv and, when present, file2.csv from the input
// area and writes the cleaned series next to the outputs.
func (r *jobRun) cleanInputs() ([]*Series, error) {
	var cleaned []*Series
	for i, name := range []string{"file1.csv", "file2.csv"} {
		source := filepath.Join(r.paths.InputDir, name)
		if _, err := os.Stat(source); err != nil {
			if i == 0 {
				return nil, fmt.Errorf("no input CSVs found for job")
			}
			continue
		}
		series, err := LoadSeries(source, r.cfg.OutlierLowerBound, r.cfg.OutlierUpperBound)
		if err != nil {
			return nil, err
		}
		if series.DroppedNonNumeric > 0 || series.DroppedOutOfRange > 0 {
			r.warnings = append(r.warnings, fmt.Sprintf(
				"%s: dropped %d non-numeric and %d out-of-range rows",
				name, series.DroppedNonNumeric, series.DroppedOutOfRange))
		}
		cleanedName := fmt.Sprintf("file%d_cleaned.csv", i+1)
		if err := WriteCleaned(filepath.Join(r.paths.OutputDir, cleanedName), series.Values); err != nil {
			return nil, err
		}
		cleaned = append(cleaned, series)
	}
	return cleaned, nil
}

// effectiveSampleSize is the configured size or the shortest cleaned series.
func (r *jobRun) effectiveSampleSize(cleaned []*Series) int {
	if r.cfg.SampleSize != nil && *r.cfg.SampleSize > 0 {
		return *r.cfg.SampleSize
	}
	size := cleaned[0].Len()
	for _, s := range cleaned[1:] {
		if s.Len() < size {
			size = s.Len()
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}

// loopTicker maps loop completion onto a progress window.
func (r *jobRun) loopTicker(step string, total int, start, span float64) func(done int) {
	return func(done int) {
		if total < 1 {
			total = 1
		}
		percent := start + float64(done)/float64(total)*span
		r.progress(percent, step, fmt.Sprintf("%d/%d", done, total))
	}
}

func sortedQuantile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantile(sorted, p)
}

func seedFromID(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
