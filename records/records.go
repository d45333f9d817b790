// Package records is the persistent store for domain records created by bulk
// imports: dealers, payout cycles, payout cases, plus the approval-request and
// audit-trail side tables the imports feed. Natural-key uniqueness lives here;
// the database unique constraints are the last line of defense against the
// read-then-write race between concurrent workers.
package records

import (
	"context"
	"errors"

	"dealerpay/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// DealerKey carries the natural-key fields of a dealer row. A collision on any
// one of the three rejects the row.
type DealerKey struct {
	DealerCode string
	GSTNumber  string
	PANNumber  string
}

// AuditEvent mirrors an audit_trail insert. Audit failures never fail the
// import; callers log and continue.
type AuditEvent struct {
	EntityType  string
	EntityID    int64
	Action      string
	NewValues   map[string]any
	PerformedBy int64
	UserAgent   string
}

// ApprovalRequest is the pending service request raised for every dealer
// created by an import. Approval processing is another subsystem's concern.
type ApprovalRequest struct {
	RequestNumber string
	RequestType   string
	EntityType    string
	EntityID      int64
	CurrentStage  string
	NextStage     string
	Status        string
	AssignedRole  string
	CreatedBy     int64
}

type Store interface {
	Ping(ctx context.Context) error

	// Dealer import path.
	DealerKeyExists(ctx context.Context, key DealerKey) (bool, error)
	CreateDealer(ctx context.Context, d *domain.Dealer) error
	GetDealerByCode(ctx context.Context, dealerCode string) (*domain.Dealer, error)

	// Payout import path.
	GetCycle(ctx context.Context, id int64) (*domain.PayoutCycle, error)
	PayoutCaseExists(ctx context.Context, cycleID, dealerID int64) (bool, error)
	CreatePayoutCase(ctx context.Context, c *domain.PayoutCase) error
	RefreshCycleTotals(ctx context.Context, cycleID int64) (*domain.PayoutCycle, error)

	// Collaborator side effects.
	CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) error
	AppendAudit(ctx context.Context, ev AuditEvent) error
}
