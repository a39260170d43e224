package domain

import (
	"encoding/json"
	"time"
)

// Job status constants. QUEUED -> RUNNING -> {COMPLETED | FAILED | CANCELLED};
// the three right-hand states are terminal and the record is immutable once
// one of them is reached.
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCancelled = "CANCELLED"
)

// IsTerminalStatus reports whether no further transition is permitted.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Progress is mutated only by the worker that owns the job while it is
// RUNNING. Percent is monotonically non-decreasing.
type Progress struct {
	Percent float64 `json:"percent"`
	Step    string  `json:"step,omitempty"`
	Message string  `json:"message,omitempty"`
}

// InputFile describes one persisted upload.
type InputFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Role      string `json:"role"`
}

// Job is the record shared by the API facade and the worker runtime.
type Job struct {
	ID              string          `db:"job_id"`
	Type            JobType         `db:"job_type"`
	Status          string          `db:"status"`
	Config          json.RawMessage `db:"config"`
	InputManifest   json.RawMessage `db:"input_manifest"`
	ProgressPercent float64         `db:"progress_percent"`
	ProgressStep    *string         `db:"progress_step"`
	ProgressMessage *string         `db:"progress_message"`
	ErrorCode       *string         `db:"error_code"`
	ErrorMessage    *string         `db:"error_message"`
	Result          json.RawMessage `db:"result"`
	WorkerID        *string         `db:"worker_id"`
	CancelRequested bool            `db:"cancel_requested"`
	CreatedAt       time.Time       `db:"created_at"`
	StartedAt       *time.Time      `db:"started_at"`
	FinishedAt      *time.Time      `db:"finished_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool {
	return IsTerminalStatus(j.Status)
}

// Progress assembles the progress triple stored as flat columns.
func (j *Job) Progress() Progress {
	p := Progress{Percent: j.ProgressPercent}
	if j.ProgressStep != nil {
		p.Step = *j.ProgressStep
	}
	if j.ProgressMessage != nil {
		p.Message = *j.ProgressMessage
	}
	return p
}

// Manifest decodes the persisted input manifest.
func (j *Job) Manifest() []InputFile {
	var files []InputFile
	if len(j.InputManifest) > 0 {
		_ = json.Unmarshal(j.InputManifest, &files)
	}
	return files
}
