package domain

import "time"

type CycleStatus string

const (
	CycleStatusDraft  CycleStatus = "Draft"
	CycleStatusActive CycleStatus = "Active"
	CycleStatusClosed CycleStatus = "Closed"
)

// PayoutCycle groups payout cases uploaded for one incentive period. Totals are
// recomputed by the cycle refresh worker after each payout import.
type PayoutCycle struct {
	ID          int64       `json:"id"`
	CycleName   string      `json:"cycleName"`
	CycleCode   string      `json:"cycleCode"`
	Status      CycleStatus `json:"status"`
	TotalCases  int64       `json:"totalCases"`
	TotalAmount float64     `json:"totalAmount"`
	CreatedBy   int64       `json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// PayoutCase is one calculated payout for a dealer in a cycle. Natural key is
// (CycleID, DealerID).
type PayoutCase struct {
	ID         int64  `json:"id"`
	CaseNumber string `json:"caseNumber"`
	CycleID    int64  `json:"cycleId"`
	DealerID   int64  `json:"dealerId"`
	PayoutType string `json:"payoutType"`

	BaseAmount      float64 `json:"baseAmount"`
	IncentiveAmount float64 `json:"incentiveAmount"`
	DeductionAmount float64 `json:"deductionAmount"`
	RecoveryAmount  float64 `json:"recoveryAmount"`
	NetAmount       float64 `json:"netAmount"`

	Status string `json:"status"`

	// CalcTrace and RawRow are stored as opaque JSON blobs next to the
	// numeric fields they summarize.
	CalcTrace []byte `json:"-"`
	RawRow    []byte `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// PayoutCaseStatusGenerated is the initial (and during import, only) status of
// a created payout case. Later stages of the payout workflow own transitions.
const PayoutCaseStatusGenerated = "PayoutGenerated"
