package cyclesync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerpay/domain"
	"dealerpay/records"
	"dealerpay/streamq"
)

func TestProcessRefreshesTotals(t *testing.T) {
	rec := records.NewMemoryStore()
	cycle := rec.AddCycle(domain.PayoutCycle{CycleCode: "CYC-1", Status: domain.CycleStatusDraft})
	d1 := rec.AddDealer(domain.Dealer{DealerCode: "A", Status: domain.DealerStatusApproved})
	d2 := rec.AddDealer(domain.Dealer{DealerCode: "B", Status: domain.DealerStatusApproved})
	ctx := context.Background()
	require.NoError(t, rec.CreatePayoutCase(ctx, &domain.PayoutCase{CaseNumber: "C1", CycleID: cycle.ID, DealerID: d1.ID, NetAmount: 1200}))
	require.NoError(t, rec.CreatePayoutCase(ctx, &domain.PayoutCase{CaseNumber: "C2", CycleID: cycle.ID, DealerID: d2.ID, NetAmount: 800}))

	w := NewWorker(rec, nil)
	require.NoError(t, w.Process(ctx, "1"))

	got, err := rec.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalCases)
	assert.Equal(t, 2000.0, got.TotalAmount)
	assert.Equal(t, domain.CycleStatusActive, got.Status)

	// Redelivery recomputes the same numbers.
	require.NoError(t, w.Process(ctx, "1"))
	got, err = rec.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalCases)
}

func TestProcessBadPayloadIsTerminal(t *testing.T) {
	w := NewWorker(records.NewMemoryStore(), nil)
	for _, payload := range []string{"", "abc", "-4"} {
		err := w.Process(context.Background(), payload)
		require.Error(t, err)
		assert.True(t, streamq.IsTerminal(err))
	}
}

func TestProcessUnknownCycleIsTerminal(t *testing.T) {
	w := NewWorker(records.NewMemoryStore(), nil)
	err := w.Process(context.Background(), "99")
	require.Error(t, err)
	assert.True(t, streamq.IsTerminal(err))
}
