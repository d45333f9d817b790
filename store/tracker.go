package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealerpay/domain"
)

// Tracker layers the job lifecycle operations over an UploadJobStore. All
// mutations for a given job come from its single owning worker, so the only
// concurrency the store has to absorb is reads from status polling.
type Tracker struct {
	Jobs UploadJobStore
}

// CreateJob registers a new upload job in Queued state and returns it.
func (t Tracker) CreateJob(kind domain.JobKind, filename, fileKey string, submittedBy int64, submittedByName string, cycleID int64) (*domain.UploadJob, error) {
	job := &domain.UploadJob{
		ID:              uuid.NewString(),
		Kind:            kind,
		Filename:        filename,
		FileKey:         fileKey,
		SubmittedBy:     submittedBy,
		SubmittedByName: submittedByName,
		CycleID:         cycleID,
		Status:          domain.JobStatusQueued,
		CreatedAt:       time.Now().UTC(),
	}
	if err := t.Jobs.Create(job); err != nil {
		return nil, fmt.Errorf("create upload job: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a leased job out of Queued. Terminal jobs are
// left alone so a redelivered message cannot resurrect a finished job.
func (t Tracker) MarkProcessing(jobID string) error {
	_, _, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		j.Status = domain.JobStatusProcessing
	})
	return err
}

// SetTotal fixes total_records once parsing completes.
func (t Tracker) SetTotal(jobID string, n int) error {
	_, _, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		j.TotalRecords = n
	})
	return err
}

// RecordOutcome counts one processed row and recomputes progress.
func (t Tracker) RecordOutcome(jobID string, success bool) error {
	_, _, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		if success {
			j.SuccessCount++
		} else {
			j.FailureCount++
		}
		j.ProcessedCount = j.SuccessCount + j.FailureCount
		if j.TotalRecords > 0 {
			j.ProgressPercent = float64(j.ProcessedCount) / float64(j.TotalRecords) * 100
		}
	})
	return err
}

// AppendError captures row-level rejection reasons. The detail list is capped
// at domain.MaxStoredRowErrors; rows past the cap are silently dropped here
// while RecordOutcome keeps the failure count exact.
func (t Tracker) AppendError(jobID string, rowOrdinal int, reasons []string) error {
	if len(reasons) == 0 {
		return nil
	}
	_, _, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		if len(j.RowErrors) >= domain.MaxStoredRowErrors {
			return
		}
		j.RowErrors = append(j.RowErrors, domain.RowError{Row: rowOrdinal, Reasons: reasons})
	})
	return err
}

// Finalize derives the terminal status from the final counts and stamps the
// completion time. After this no mutation is applied to the job.
func (t Tracker) Finalize(jobID string) (*domain.UploadJob, error) {
	now := time.Now().UTC()
	job, ok, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		j.Status = domain.TerminalStatusFor(j.FailureCount, j.TotalRecords)
		j.ProcessedCount = j.SuccessCount + j.FailureCount
		j.ProgressPercent = 100
		j.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("finalize: job %s not found", jobID)
	}
	return job, nil
}

// FailJob aborts the whole job with a single synthetic error entry (malformed
// file, unrecoverable setup failure). No rows are counted.
func (t Tracker) FailJob(jobID string, reason string) error {
	now := time.Now().UTC()
	_, _, err := t.Jobs.Update(jobID, func(j *domain.UploadJob) {
		if j.Status.Terminal() {
			return
		}
		j.Status = domain.JobStatusFailed
		j.RowErrors = append(j.RowErrors, domain.RowError{Row: 0, Reasons: []string{reason}})
		j.CompletedAt = &now
	})
	return err
}
