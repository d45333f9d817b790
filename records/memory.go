package records

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dealerpay/domain"
)

// MemoryStore is an in-memory Store used by tests. It enforces the same
// natural-key uniqueness as the database constraints.
type MemoryStore struct {
	mu sync.Mutex

	nextDealerID int64
	nextCaseID   int64
	nextCycleID  int64

	dealers map[int64]*domain.Dealer
	cycles  map[int64]*domain.PayoutCycle
	cases   map[int64]*domain.PayoutCase

	Approvals []ApprovalRequest
	Audits    []AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextDealerID: 1,
		nextCaseID:   1,
		nextCycleID:  1,
		dealers:      make(map[int64]*domain.Dealer),
		cycles:       make(map[int64]*domain.PayoutCycle),
		cases:        make(map[int64]*domain.PayoutCase),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) DealerKeyExists(ctx context.Context, key DealerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dealerKeyTaken(key), nil
}

func (s *MemoryStore) dealerKeyTaken(key DealerKey) bool {
	for _, d := range s.dealers {
		if d.DealerCode == key.DealerCode ||
			strings.EqualFold(d.GSTNumber, key.GSTNumber) ||
			strings.EqualFold(d.PANNumber, key.PANNumber) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateDealer(ctx context.Context, d *domain.Dealer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DealerKey{DealerCode: d.DealerCode, GSTNumber: d.GSTNumber, PANNumber: d.PANNumber}
	if s.dealerKeyTaken(key) {
		return ErrDuplicateKey
	}
	d.ID = s.nextDealerID
	s.nextDealerID++
	d.GSTNumber = strings.ToUpper(d.GSTNumber)
	d.PANNumber = strings.ToUpper(d.PANNumber)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	s.dealers[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDealerByCode(ctx context.Context, dealerCode string) (*domain.Dealer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dealers {
		if d.DealerCode == dealerCode {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// AddDealer seeds a dealer directly, bypassing uniqueness checks. Test helper.
func (s *MemoryStore) AddDealer(d domain.Dealer) *domain.Dealer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.nextDealerID
		s.nextDealerID++
	} else if d.ID >= s.nextDealerID {
		s.nextDealerID = d.ID + 1
	}
	s.dealers[d.ID] = &d
	return &d
}

// AddCycle seeds a payout cycle. Test helper.
func (s *MemoryStore) AddCycle(c domain.PayoutCycle) *domain.PayoutCycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextCycleID
		s.nextCycleID++
	} else if c.ID >= s.nextCycleID {
		s.nextCycleID = c.ID + 1
	}
	s.cycles[c.ID] = &c
	return &c
}

func (s *MemoryStore) GetCycle(ctx context.Context, id int64) (*domain.PayoutCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) PayoutCaseExists(ctx context.Context, cycleID, dealerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caseTaken(cycleID, dealerID), nil
}

func (s *MemoryStore) caseTaken(cycleID, dealerID int64) bool {
	for _, c := range s.cases {
		if c.CycleID == cycleID && c.DealerID == dealerID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreatePayoutCase(ctx context.Context, c *domain.PayoutCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caseTaken(c.CycleID, c.DealerID) {
		return ErrDuplicateKey
	}
	if _, ok := s.cycles[c.CycleID]; !ok {
		return fmt.Errorf("cycle %d does not exist", c.CycleID)
	}
	c.ID = s.nextCaseID
	s.nextCaseID++
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

func (s *MemoryStore) RefreshCycleTotals(ctx context.Context, cycleID int64) (*domain.PayoutCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cyc, ok := s.cycles[cycleID]
	if !ok {
		return nil, ErrNotFound
	}
	var count int64
	var sum float64
	for _, c := range s.cases {
		if c.CycleID == cycleID {
			count++
			sum += c.NetAmount
		}
	}
	cyc.TotalCases = count
	cyc.TotalAmount = sum
	cyc.Status = domain.CycleStatusActive
	cp := *cyc
	return &cp, nil
}

func (s *MemoryStore) CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Approvals = append(s.Approvals, *req)
	return nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Audits = append(s.Audits, ev)
	return nil
}

// Dealers returns a snapshot of all stored dealers. Test helper.
func (s *MemoryStore) Dealers() []domain.Dealer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Dealer, 0, len(s.dealers))
	for _, d := range s.dealers {
		out = append(out, *d)
	}
	return out
}

// Cases returns a snapshot of all stored payout cases. Test helper.
func (s *MemoryStore) Cases() []domain.PayoutCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PayoutCase, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, *c)
	}
	return out
}
