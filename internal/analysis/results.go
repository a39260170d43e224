package analysis

// Decision is the summary block every hypothesis-testing result carries.
type Decision struct {
	Alpha       float64  `json:"alpha"`
	PValue      *float64 `json:"pValue,omitempty"`
	Significant *bool    `json:"significant,omitempty"`
}

// Metrics holds the point estimates and intervals of a bootstrap run.
type Metrics struct {
	SampleSize        int      `json:"sampleSize"`
	P95               *float64 `json:"p95,omitempty"`
	P952              *float64 `json:"p95_2,omitempty"`
	CILower           *float64 `json:"ciLower,omitempty"`
	CIUpper           *float64 `json:"ciUpper,omitempty"`
	CILower2          *float64 `json:"ciLower2,omitempty"`
	CIUpper2          *float64 `json:"ciUpper2,omitempty"`
	MarginOfErrorPct  *float64 `json:"marginOfErrorPct,omitempty"`
	MarginOfErrorPct2 *float64 `json:"marginOfErrorPct2,omitempty"`
	Threshold         *float64 `json:"threshold,omitempty"`
}

// PlotRef points at one rendered plot artifact.
type PlotRef struct {
	Kind         string `json:"kind"`
	ArtifactName string `json:"artifactName"`
}

// Omnibus is the Kruskal-Wallis permutation summary.
type Omnibus struct {
	HStatistic    float64 `json:"hStatistic"`
	Permutations  int     `json:"permutations"`
	TotalN        int     `json:"totalN"`
	TieCorrection float64 `json:"tieCorrection"`
	GroupSizes    []int   `json:"groupSizes"`
}

// KWGroupFile summarises one CSV inside a KW group.
type KWGroupFile struct {
	FileName string  `json:"fileName"`
	N        int     `json:"n"`
	P95      float64 `json:"p95"`
	Median   float64 `json:"median"`
}

// KWGroupResult summarises one KW group.
type KWGroupResult struct {
	GroupName string        `json:"groupName"`
	Files     []KWGroupFile `json:"files"`
}

// ResultDocument is the normalized result returned to polling clients. The
// populated sections vary by job type but the decision/plots contract is
// shared.
type ResultDocument struct {
	JobID       string          `json:"jobId"`
	JobType     string          `json:"jobType"`
	Decision    *Decision       `json:"decision,omitempty"`
	Metrics     *Metrics        `json:"metrics,omitempty"`
	Descriptive *Descriptive    `json:"descriptive,omitempty"`
	Omnibus     *Omnibus        `json:"omnibus,omitempty"`
	Groups      []KWGroupResult `json:"groups,omitempty"`
	Plots       []PlotRef       `json:"plots"`
	Warnings    []string        `json:"warnings,omitempty"`
}
