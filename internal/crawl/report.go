package crawl

import (
	"fmt"
	"time"

	"github.com/sells-group/directory-crawler/internal/resilience"
)

// SkippedItem is a detail page or listing page given up on.
type SkippedItem struct {
	Site  string               `json:"site"`
	URL   string               `json:"url"`
	Kind  resilience.ErrorKind `json:"kind"`
	Error string               `json:"error"`
}

// Report summarizes one job run.
type Report struct {
	JobID       string       `json:"job_id"`
	State       State        `json:"state"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Transitions []Transition `json:"transitions"`

	// Cause is the error that failed the job, also serialized by kind and
	// message.
	Cause     error                `json:"-"`
	CauseKind resilience.ErrorKind `json:"cause_kind,omitempty"`
	CauseText string               `json:"cause,omitempty"`

	Pages      int `json:"pages"`
	Inserted   int `json:"inserted"`
	Merged     int `json:"merged"`
	Unchanged  int `json:"unchanged"`
	Degraded   int `json:"degraded"`
	Duplicates int `json:"duplicates"`

	// Skipped counts detail items by failure kind. Items cut short by job
	// cancellation count as canceled.
	Skipped         map[resilience.ErrorKind]int `json:"skipped"`
	SkippedItems    []SkippedItem                `json:"skipped_items"`
	ListingFailures []SkippedItem                `json:"listing_failures"`
	// Diagnostics holds the messages of structural parse failures.
	Diagnostics []string `json:"diagnostics"`
}

func newReport(jobID string, now time.Time) *Report {
	return &Report{
		JobID:     jobID,
		State:     Idle,
		StartedAt: now,
		Skipped:   make(map[resilience.ErrorKind]int),
	}
}

// TotalSkipped returns the number of skipped detail items.
func (r *Report) TotalSkipped() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Persisted returns the number of records written or confirmed.
func (r *Report) Persisted() int {
	return r.Inserted + r.Merged + r.Unchanged
}

// ExitStatus classifies the finished job.
type ExitStatus int

const (
	// Success means every query completed without skipped work.
	Success ExitStatus = iota
	// Partial means the job completed but skipped items or listing pages.
	Partial
	// Aborted means the job failed.
	Aborted
)

func (s ExitStatus) String() string {
	switch s {
	case Success:
		return "success"
	case Partial:
		return "partial"
	default:
		return "aborted"
	}
}

// Code is the process exit code for s.
func (s ExitStatus) Code() int {
	switch s {
	case Success:
		return 0
	case Partial:
		return 2
	default:
		return 1
	}
}

// ExitStatus derives the job outcome from the final state and skip counts.
func (r *Report) ExitStatus() ExitStatus {
	if r.State != Done {
		return Aborted
	}
	if r.TotalSkipped() > 0 || len(r.ListingFailures) > 0 {
		return Partial
	}
	return Success
}

// JobError is returned when a job ends in Failed.
type JobError struct {
	JobID string
	Kind  resilience.ErrorKind
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("crawl: job %s aborted (%s): %v", e.JobID, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ErrorKind implements resilience.Classified.
func (e *JobError) ErrorKind() resilience.ErrorKind { return e.Kind }
