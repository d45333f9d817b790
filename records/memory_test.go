package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerpay/domain"
)

func TestMemoryStoreDealerNaturalKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	d := &domain.Dealer{
		DealerCode: "DLR001",
		DealerName: "Acme Motors",
		GSTNumber:  "27ABCDE1234F1Z5",
		PANNumber:  "ABCDE1234F",
		State:      "Maharashtra",
		Email:      "acme@example.com",
		Mobile:     "9876543210",
		Status:     domain.DealerStatusPending,
		CreatedBy:  7,
	}
	require.NoError(t, s.CreateDealer(ctx, d))
	assert.NotZero(t, d.ID)

	// Any one colliding natural key rejects the insert.
	cases := []DealerKey{
		{DealerCode: "DLR001", GSTNumber: "29ZZZZZ9999Z9Z9", PANNumber: "ZZZZZ9999Z"},
		{DealerCode: "DLR002", GSTNumber: "27ABCDE1234F1Z5", PANNumber: "ZZZZZ9999Z"},
		{DealerCode: "DLR002", GSTNumber: "29ZZZZZ9999Z9Z9", PANNumber: "ABCDE1234F"},
	}
	for _, key := range cases {
		exists, err := s.DealerKeyExists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)

		err = s.CreateDealer(ctx, &domain.Dealer{
			DealerCode: key.DealerCode,
			GSTNumber:  key.GSTNumber,
			PANNumber:  key.PANNumber,
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	}

	got, err := s.GetDealerByCode(ctx, "DLR001")
	require.NoError(t, err)
	assert.Equal(t, "Acme Motors", got.DealerName)

	_, err = s.GetDealerByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePayoutCaseUniquePerCycleDealer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	cyc := s.AddCycle(domain.PayoutCycle{CycleName: "Aug 2026", CycleCode: "CYC-2026-08", Status: domain.CycleStatusDraft})
	dlr := s.AddDealer(domain.Dealer{DealerCode: "DLR001", Status: domain.DealerStatusApproved})

	c := &domain.PayoutCase{
		CaseNumber: "CASE-1-1",
		CycleID:    cyc.ID,
		DealerID:   dlr.ID,
		NetAmount:  1500,
		Status:     domain.PayoutCaseStatusGenerated,
	}
	require.NoError(t, s.CreatePayoutCase(ctx, c))

	dup := *c
	dup.ID = 0
	dup.CaseNumber = "CASE-1-2"
	assert.ErrorIs(t, s.CreatePayoutCase(ctx, &dup), ErrDuplicateKey)
}

func TestMemoryStoreRefreshCycleTotals(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	cyc := s.AddCycle(domain.PayoutCycle{CycleCode: "CYC-1", Status: domain.CycleStatusDraft})
	d1 := s.AddDealer(domain.Dealer{DealerCode: "A"})
	d2 := s.AddDealer(domain.Dealer{DealerCode: "B"})

	require.NoError(t, s.CreatePayoutCase(ctx, &domain.PayoutCase{CaseNumber: "C1", CycleID: cyc.ID, DealerID: d1.ID, NetAmount: 1000}))
	require.NoError(t, s.CreatePayoutCase(ctx, &domain.PayoutCase{CaseNumber: "C2", CycleID: cyc.ID, DealerID: d2.ID, NetAmount: 2500}))

	got, err := s.RefreshCycleTotals(ctx, cyc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalCases)
	assert.Equal(t, 3500.0, got.TotalAmount)
	assert.Equal(t, domain.CycleStatusActive, got.Status)

	_, err = s.RefreshCycleTotals(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
