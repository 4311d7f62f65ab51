package music

import (
	"errors"
	"fmt"
	"time"
)

// Status is the caller-facing state of a generation job. The remote API's own
// vocabulary never leaves this package; see MapRemoteStatus.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
)

// IsTerminal reports whether no further transition can happen from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Remote status strings reported by the record-info endpoint.
const (
	remoteSuccess = "SUCCESS"
	remoteFailed  = "FAILED"
)

// MapRemoteStatus maps the remote status vocabulary onto the closed Status set.
// Anything unrecognised is still in flight.
func MapRemoteStatus(raw string) Status {
	switch raw {
	case remoteSuccess:
		return StatusCompleted
	case remoteFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// ErrMissingCredential is returned when an API key is needed but not configured.
var ErrMissingCredential = errors.New("music API key is not configured")

// SubmissionError reports a generation request the remote service did not accept.
type SubmissionError struct {
	Reason string
	Body   string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit generation task: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("submit generation task: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// SongRequest describes the song to generate.
type SongRequest struct {
	Lyrics string
	Title  string
	// Style overrides the configured default style when set.
	Style string
}

// Snapshot is the result of a single status poll. Problems are captured in
// Status and Message, never returned as errors.
type Snapshot struct {
	TaskID       string
	Status       Status
	RemoteStatus string
	AudioURLs    []string
	Message      string
}

// Job tracks one generation task through polling.
// ResultURLs is non-empty exactly when Status is StatusCompleted.
type Job struct {
	ID          string   `json:"id"`
	Status      Status   `json:"status"`
	ResultURLs  []string `json:"result_urls,omitempty"`
	ErrorDetail string   `json:"error_detail,omitempty"`
}

// NewJob returns a job in the submitted state.
func NewJob(id string) *Job {
	return &Job{ID: id, Status: StatusSubmitted}
}

// Apply folds a poll snapshot into the job. It returns false and leaves the job
// untouched when the job is already terminal.
func (j *Job) Apply(s Snapshot) bool {
	if j.Status.IsTerminal() {
		return false
	}

	switch s.Status {
	case StatusCompleted:
		if len(s.AudioURLs) == 0 {
			j.finish(StatusFailed, "task reported success without any audio URLs")
			return true
		}
		j.Status = StatusCompleted
		j.ResultURLs = append([]string(nil), s.AudioURLs...)
		j.ErrorDetail = ""
	case StatusFailed, StatusError, StatusTimedOut:
		j.finish(s.Status, s.Message)
	default:
		j.Status = StatusProcessing
	}
	return true
}

func (j *Job) finish(status Status, detail string) {
	if j.Status.IsTerminal() {
		return
	}
	j.Status = status
	j.ResultURLs = nil
	j.ErrorDetail = detail
}

// Outcome is the terminal result of driving a job.
type Outcome struct {
	Job
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}
