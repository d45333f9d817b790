package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerpay/domain"
)

func newTracker(t *testing.T) (Tracker, *domain.UploadJob) {
	t.Helper()
	tr := Tracker{Jobs: NewInMemoryUploadJobStore()}
	job, err := tr.CreateJob(domain.JobKindDealerImport, "dealers.csv", "file-key", 7, "maker1", 0)
	require.NoError(t, err)
	return tr, job
}

func TestCreateJobInitialState(t *testing.T) {
	tr, job := newTracker(t)

	got, ok, err := tr.Jobs.Get(job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Zero(t, got.TotalRecords)
	assert.Zero(t, got.SuccessCount)
	assert.Zero(t, got.FailureCount)
	assert.Nil(t, got.CompletedAt)
}

func TestRecordOutcomeProgress(t *testing.T) {
	tr, job := newTracker(t)
	require.NoError(t, tr.MarkProcessing(job.ID))
	require.NoError(t, tr.SetTotal(job.ID, 4))

	var last float64
	for i := 0; i < 4; i++ {
		require.NoError(t, tr.RecordOutcome(job.ID, i%2 == 0))
		got, _, _ := tr.Jobs.Get(job.ID)
		assert.GreaterOrEqual(t, got.ProgressPercent, last, "progress must be monotonic")
		last = got.ProgressPercent
	}

	got, _, _ := tr.Jobs.Get(job.ID)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 2, got.FailureCount)
	assert.Equal(t, 4, got.ProcessedCount)
	assert.Equal(t, 100.0, got.ProgressPercent)
}

func TestFinalizeStatusDerivation(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      domain.JobStatus
	}{
		{"all ok", 3, 0, domain.JobStatusCompleted},
		{"all bad", 0, 3, domain.JobStatusFailed},
		{"mixed", 2, 1, domain.JobStatusPartiallyCompleted},
		{"empty file", 0, 0, domain.JobStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, job := newTracker(t)
			require.NoError(t, tr.MarkProcessing(job.ID))
			require.NoError(t, tr.SetTotal(job.ID, tt.successes+tt.failures))
			for i := 0; i < tt.successes; i++ {
				require.NoError(t, tr.RecordOutcome(job.ID, true))
			}
			for i := 0; i < tt.failures; i++ {
				require.NoError(t, tr.RecordOutcome(job.ID, false))
			}
			final, err := tr.Finalize(job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, final.Status)
			assert.Equal(t, final.TotalRecords, final.SuccessCount+final.FailureCount)
			require.NotNil(t, final.CompletedAt)
		})
	}
}

func TestTerminalJobImmutable(t *testing.T) {
	tr, job := newTracker(t)
	require.NoError(t, tr.SetTotal(job.ID, 1))
	require.NoError(t, tr.RecordOutcome(job.ID, true))
	final, err := tr.Finalize(job.ID)
	require.NoError(t, err)
	require.True(t, final.Status.Terminal())

	// Redelivered message must not resurrect or mutate the job.
	require.NoError(t, tr.MarkProcessing(job.ID))
	require.NoError(t, tr.RecordOutcome(job.ID, false))
	require.NoError(t, tr.AppendError(job.ID, 2, []string{"late"}))

	got, _, _ := tr.Jobs.Get(job.ID)
	assert.Equal(t, final.Status, got.Status)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Zero(t, got.FailureCount)
	assert.Empty(t, got.RowErrors)
}

func TestAppendErrorCap(t *testing.T) {
	tr, job := newTracker(t)
	require.NoError(t, tr.SetTotal(job.ID, 150))

	for i := 0; i < 150; i++ {
		require.NoError(t, tr.RecordOutcome(job.ID, false))
		require.NoError(t, tr.AppendError(job.ID, i+2, []string{fmt.Sprintf("bad row %d", i+2)}))
	}

	got, _, _ := tr.Jobs.Get(job.ID)
	assert.Len(t, got.RowErrors, domain.MaxStoredRowErrors)
	// counts stay exact past the cap
	assert.Equal(t, 150, got.FailureCount)
	assert.Equal(t, 2, got.RowErrors[0].Row)
	assert.Equal(t, 101, got.RowErrors[len(got.RowErrors)-1].Row)
}

func TestFailJobSyntheticError(t *testing.T) {
	tr, job := newTracker(t)
	require.NoError(t, tr.FailJob(job.ID, "file is not parsable as tabular text"))

	got, _, _ := tr.Jobs.Get(job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.Len(t, got.RowErrors, 1)
	assert.Equal(t, 0, got.RowErrors[0].Row)
	require.NotNil(t, got.CompletedAt)
}

func TestListNewestFirst(t *testing.T) {
	tr := Tracker{Jobs: NewInMemoryUploadJobStore()}
	for i := 0; i < 3; i++ {
		_, err := tr.CreateJob(domain.JobKindDealerImport, fmt.Sprintf("f%d.csv", i), "", 1, "", 0)
		require.NoError(t, err)
	}
	_, err := tr.CreateJob(domain.JobKindPayoutImport, "p.csv", "", 1, "", 9)
	require.NoError(t, err)

	dealers, err := tr.Jobs.List(domain.JobKindDealerImport, 2)
	require.NoError(t, err)
	assert.Len(t, dealers, 2)
	for _, j := range dealers {
		assert.Equal(t, domain.JobKindDealerImport, j.Kind)
	}

	all, err := tr.Jobs.List("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
