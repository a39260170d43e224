package domain

import "errors"

// Stable machine-readable error codes surfaced to clients or recorded on
// failed jobs.
const (
	CodeMissingFile        = "MISSING_FILE"
	CodeInvalidFile        = "INVALID_FILE"
	CodeInvalidJobType     = "INVALID_JOB_TYPE"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeQueueFull          = "QUEUE_FULL"
	CodeQueueUnavailable   = "QUEUE_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeNotReady           = "NOT_READY"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidArtifact    = "INVALID_ARTIFACT"
	CodeAnalysisError      = "ANALYSIS_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeCancelled          = "CANCELLED"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
)

var (
	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimable is returned when the QUEUED->RUNNING claim loses
	// the race: another worker owns the job or it was cancelled while queued.
	ErrJobNotClaimable = errors.New("job not claimable")

	// ErrInvalidPayload is returned when a job's frozen config cannot be
	// decoded by the worker.
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrJobCancelled aborts a run when the cancellation flag is observed at
	// a checkpoint.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrJobTimeout aborts a run when the wall-clock deadline is exceeded.
	ErrJobTimeout = errors.New("job deadline exceeded")
)

// RetryableError wraps transient errors that should trigger a requeue of the
// queue message rather than a terminal failure.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
