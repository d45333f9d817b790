package domain

import "time"

type DealerStatus string

const (
	DealerStatusPending  DealerStatus = "Pending"
	DealerStatusApproved DealerStatus = "Approved"
	DealerStatusRejected DealerStatus = "Rejected"
)

// Dealer is a dealer master record. DealerCode, GSTNumber and PANNumber each
// form a natural key: a collision on any of them rejects the incoming row.
type Dealer struct {
	ID         int64        `json:"id"`
	DealerCode string       `json:"dealerCode"`
	DealerName string       `json:"dealerName"`
	GSTNumber  string       `json:"gstNumber"`
	PANNumber  string       `json:"panNumber"`
	State      string       `json:"state"`
	Email      string       `json:"email"`
	Mobile     string       `json:"mobile"`
	Status     DealerStatus `json:"status"`

	// Optional columns accepted by the bulk template.
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	Pincode       string `json:"pincode,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSCCode      string `json:"ifscCode,omitempty"`
	Branch        string `json:"branch,omitempty"`

	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
