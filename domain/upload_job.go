package domain

import "time"

type JobKind string

const (
	JobKindDealerImport JobKind = "DealerImport"
	JobKindPayoutImport JobKind = "PayoutImport"
)

type JobStatus string

const (
	JobStatusQueued             JobStatus = "Queued"
	JobStatusProcessing         JobStatus = "Processing"
	JobStatusCompleted          JobStatus = "Completed"
	JobStatusFailed             JobStatus = "Failed"
	JobStatusPartiallyCompleted JobStatus = "PartiallyCompleted"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusPartiallyCompleted
}

// MaxStoredRowErrors bounds the per-job error detail list. FailureCount stays
// exact even after the list is full.
const MaxStoredRowErrors = 100

// RowError is one captured row-level rejection. Row is 1-based counting the
// header, so the first data row is row 2.
type RowError struct {
	Row     int      `json:"row"`
	Reasons []string `json:"errors"`
}

// UploadJob is the durable record of one bulk-import request. It is created by
// the submission gateway in Queued state and mutated only by the worker that
// owns the queue message; once terminal it never changes again.
type UploadJob struct {
	ID       string  `json:"jobId"`
	Kind     JobKind `json:"kind"`
	Filename string  `json:"filename"`

	SubmittedBy     int64     `json:"submittedBy"`
	SubmittedByName string    `json:"submittedByName,omitempty"`
	CycleID         int64     `json:"cycleId,omitempty"` // payout imports only
	FileKey         string    `json:"-"`                 // filestore key of the raw upload
	Status          JobStatus `json:"status"`

	TotalRecords    int        `json:"totalRecords"`
	ProcessedCount  int        `json:"processedCount"`
	SuccessCount    int        `json:"successCount"`
	FailureCount    int        `json:"failureCount"`
	ProgressPercent float64    `json:"progressPercent"`
	RowErrors       []RowError `json:"rowErrors,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TerminalStatusFor derives the terminal status from final counts:
// zero failures completes, all-failures fails, anything else is partial.
func TerminalStatusFor(failureCount, totalRecords int) JobStatus {
	switch {
	case failureCount == 0:
		return JobStatusCompleted
	case failureCount == totalRecords:
		return JobStatusFailed
	default:
		return JobStatusPartiallyCompleted
	}
}
