// internal/errors/errors.go
package appErrors

import "fmt"

// ErrJobNotFound is a sentinel error
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// Helper constructor
func NewJobNotFound(id string) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrValidation reports bad recipient or content input at create time. It is
// local to the request and never affects persisted state.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func NewValidation(format string, args ...interface{}) error {
	return &ErrValidation{Reason: fmt.Sprintf(format, args...)}
}

// ErrNoContentAvailable means none of the job's content sources resolved.
// Job-fatal: the dispatcher moves the job to failed on it.
type ErrNoContentAvailable struct {
	JobID string
}

func (e *ErrNoContentAvailable) Error() string {
	return fmt.Sprintf("no content available for job %s", e.JobID)
}

func NewNoContentAvailable(jobID string) error {
	return &ErrNoContentAvailable{JobID: jobID}
}

// ErrProvider reports a transport or validation failure from a send provider.
// Per-recipient: recorded on the recipient, never aborts the batch or job.
type ErrProvider struct {
	Code    string
	Message string
}

func (e *ErrProvider) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func NewProvider(code, message string) error {
	return &ErrProvider{Code: code, Message: message}
}

// ErrDispatch wraps anything unexpected escaping the batch loop. The job is
// moved to failed and the cause logged; it is not retried automatically.
type ErrDispatch struct {
	JobID string
	Err   error
}

func (e *ErrDispatch) Error() string {
	return fmt.Sprintf("dispatch of job %s failed: %v", e.JobID, e.Err)
}

func (e *ErrDispatch) Unwrap() error { return e.Err }

func NewDispatch(jobID string, err error) error {
	return &ErrDispatch{JobID: jobID, Err: err}
}
