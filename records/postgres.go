package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealerpay/domain"
)

// PostgresStore implements Store using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) DealerKeyExists(ctx context.Context, key DealerKey) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM dealers WHERE dealer_code = $1 OR gst_number = $2 OR pan_number = $3 LIMIT 1`,
		key.DealerCode, key.GSTNumber, key.PANNumber,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dealer key lookup: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) CreateDealer(ctx context.Context, d *domain.Dealer) error {
	// GST and PAN are stored uppercase so the unique constraints are
	// case-insensitive in practice.
	d.GSTNumber = strings.ToUpper(d.GSTNumber)
	d.PANNumber = strings.ToUpper(d.PANNumber)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO dealers
		   (dealer_code, dealer_name, gst_number, pan_number, state, email, mobile,
		    address, city, pincode, bank_name, account_number, ifsc_code, branch,
		    status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id, created_at`,
		d.DealerCode, d.DealerName, d.GSTNumber, d.PANNumber, d.State, d.Email, d.Mobile,
		nilIfEmpty(d.Address), nilIfEmpty(d.City), nilIfEmpty(d.Pincode), nilIfEmpty(d.BankName),
		nilIfEmpty(d.AccountNumber), nilIfEmpty(d.IFSCCode), nilIfEmpty(d.Branch),
		d.Status, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create dealer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDealerByCode(ctx context.Context, dealerCode string) (*domain.Dealer, error) {
	var d domain.Dealer
	var address, city, pincode, bankName, accountNumber, ifscCode, branch *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, dealer_code, dealer_name, gst_number, pan_number, state, email, mobile,
		        address, city, pincode, bank_name, account_number, ifsc_code, branch,
		        status, created_by, created_at
		 FROM dealers WHERE dealer_code = $1`,
		dealerCode,
	).Scan(&d.ID, &d.DealerCode, &d.DealerName, &d.GSTNumber, &d.PANNumber, &d.State, &d.Email, &d.Mobile,
		&address, &city, &pincode, &bankName, &accountNumber, &ifscCode, &branch,
		&d.Status, &d.CreatedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dealer by code: %w", err)
	}
	d.Address = deref(address)
	d.City = deref(city)
	d.Pincode = deref(pincode)
	d.BankName = deref(bankName)
	d.AccountNumber = deref(accountNumber)
	d.IFSCCode = deref(ifscCode)
	d.Branch = deref(branch)
	return &d, nil
}

func (s *PostgresStore) GetCycle(ctx context.Context, id int64) (*domain.PayoutCycle, error) {
	var c domain.PayoutCycle
	err := s.pool.QueryRow(ctx,
		`SELECT id, cycle_name, cycle_code, status, total_cases, total_amount, created_by, created_at
		 FROM payout_cycles WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CycleName, &c.CycleCode, &c.Status, &c.TotalCases, &c.TotalAmount, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout cycle: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) PayoutCaseExists(ctx context.Context, cycleID, dealerID int64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM payout_cases WHERE cycle_id = $1 AND dealer_id = $2 LIMIT 1`,
		cycleID, dealerID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("payout case lookup: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) CreatePayoutCase(ctx context.Context, c *domain.PayoutCase) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO payout_cases
		   (case_number, cycle_id, dealer_id, payout_type,
		    base_amount, incentive_amount, deduction_amount, recovery_amount, net_amount,
		    status, bre_calculation, raw_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		c.CaseNumber, c.CycleID, c.DealerID, c.PayoutType,
		c.BaseAmount, c.IncentiveAmount, c.DeductionAmount, c.RecoveryAmount, c.NetAmount,
		c.Status, c.CalcTrace, c.RawRow,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create payout case: %w", err)
	}
	return nil
}

func (s *PostgresStore) RefreshCycleTotals(ctx context.Context, cycleID int64) (*domain.PayoutCycle, error) {
	_, err := s.pool.Exec(ctx,
		`UPDATE payout_cycles SET
		   total_cases  = t.n,
		   total_amount = t.amount,
		   status       = $2
		 FROM (
		   SELECT COUNT(*) AS n, COALESCE(SUM(net_amount), 0) AS amount
		   FROM payout_cases WHERE cycle_id = $1
		 ) AS t
		 WHERE id = $1`,
		cycleID, domain.CycleStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("refresh cycle totals: %w", err)
	}
	return s.GetCycle(ctx, cycleID)
}

func (s *PostgresStore) CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO service_requests
		   (request_number, request_type, entity_type, entity_id,
		    current_stage, next_stage, status, assigned_role, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.RequestNumber, req.RequestType, req.EntityType, req.EntityID,
		req.CurrentStage, req.NextStage, req.Status, req.AssignedRole, req.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, ev AuditEvent) error {
	var newValues []byte
	if ev.NewValues != nil {
		b, err := json.Marshal(ev.NewValues)
		if err != nil {
			return fmt.Errorf("marshal audit values: %w", err)
		}
		newValues = b
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_trail (entity_type, entity_id, action, new_values, user_agent, performed_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.EntityType, ev.EntityID, ev.Action, newValues, nilIfEmpty(ev.UserAgent), ev.PerformedBy,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
