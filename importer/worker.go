package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealerpay/calc"
	"dealerpay/domain"
	"dealerpay/filestore"
	"dealerpay/obs"
	"dealerpay/records"
	"dealerpay/redislock"
	"dealerpay/store"
	"dealerpay/streamq"
	"dealerpay/tabfile"
)

// Worker processes one queued upload job end to end: fetch the stored file,
// parse it, run every row through validation and persistence, then finalize
// the job record. Rows are strictly sequential within a job; parallelism comes
// from processing different jobs on different consumers.
type Worker struct {
	tracker  store.Tracker
	records  records.Store
	files    filestore.FileStore
	cycleq   streamq.JobQueue
	lock     *redislock.Client
	lockTTL  time.Duration
	lockKick time.Duration
}

func NewWorker(tr store.Tracker, rec records.Store, files filestore.FileStore, cycleq streamq.JobQueue, lock *redislock.Client) *Worker {
	lockTTL := readEnvDurationSecondsDefault("IMPORT_JOB_LOCK_TTL_SECONDS", time.Hour)
	lockKick := readEnvDurationSecondsDefault("IMPORT_JOB_LOCK_REFRESH_SECONDS", 30*time.Second)
	if lockKick <= 0 {
		lockKick = 30 * time.Second
	}
	return &Worker{
		tracker:  tr,
		records:  rec,
		files:    files,
		cycleq:   cycleq,
		lock:     lock,
		lockTTL:  lockTTL,
		lockKick: lockKick,
	}
}

func (w *Worker) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	err := w.process(ctx, jobID)
	obs.RecordWorkerJob("importer", start, errIgnoringTerminal(err))
	return err
}

func errIgnoringTerminal(err error) error {
	if err == nil || streamq.IsTerminal(err) {
		return nil
	}
	return err
}

func (w *Worker) process(ctx context.Context, jobID string) error {
	if w == nil || w.records == nil {
		return errors.New("worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Distributed lock: prevent duplicate processing across worker replicas.
	if w.lock != nil {
		token, err := redislock.Token()
		if err != nil {
			return err
		}
		lockKey := w.lock.Key(jobID)
		ok, err := w.lock.Acquire(ctx, lockKey, token, w.lockTTL)
		if err != nil {
			// transient: keep pending
			return err
		}
		if !ok {
			// Likely a duplicate enqueue; ACK and move on.
			return streamq.Terminal(fmt.Errorf("job locked: %s", lockKey))
		}
		defer func() {
			_, _ = w.lock.Release(context.Background(), lockKey, token)
		}()

		stopKick := make(chan struct{})
		defer close(stopKick)
		go func() {
			t := time.NewTicker(w.lockKick)
			defer t.Stop()
			for {
				select {
				case <-stopKick:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					_, err := w.lock.Refresh(context.Background(), lockKey, token, w.lockTTL)
					if err != nil {
						log.Printf("lock refresh failed job=%s: %v", jobID, err)
					}
				}
			}
		}()
	}

	job, ok, err := w.tracker.Jobs.Get(jobID)
	if err != nil {
		return err
	}
	if !ok {
		// Job record expired or never existed; nothing to retry.
		return streamq.Terminal(fmt.Errorf("job %s not found", jobID))
	}
	if job.Status.Terminal() {
		// Redelivered message for a finished job. A payout job may have
		// crashed between finalize and the chained enqueue, so repeat the
		// enqueue before acking; the recompute downstream is idempotent.
		if job.Kind == domain.JobKindPayoutImport && w.cycleq != nil && job.Status != domain.JobStatusFailed {
			enqueueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := w.cycleq.Enqueue(enqueueCtx, strconv.FormatInt(job.CycleID, 10)); err != nil {
				return err
			}
		}
		return streamq.Terminal(nil)
	}

	if err := w.tracker.MarkProcessing(jobID); err != nil {
		return err
	}

	data, err := w.files.Fetch(ctx, job.FileKey)
	if errors.Is(err, filestore.ErrFileNotFound) {
		return streamq.Terminal(w.abort(jobID, "uploaded file not found or expired"))
	}
	if err != nil {
		// transient storage error: keep pending for redelivery
		return err
	}

	rd, err := tabfile.Open(data)
	if err != nil {
		return streamq.Terminal(w.abort(jobID, "file could not be parsed: "+err.Error()))
	}
	rows, err := tabfile.ReadAll(rd)
	_ = rd.Close()
	if err != nil {
		return streamq.Terminal(w.abort(jobID, "file could not be parsed: "+err.Error()))
	}

	if err := w.tracker.SetTotal(jobID, len(rows)); err != nil {
		return err
	}

	// On redelivery after a crash, skip rows already counted by the previous
	// attempt. The duplicate checks below are the backstop for the row that
	// was mid-flight when the worker died.
	skip := job.ProcessedCount

	for i, row := range rows {
		if i < skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			// Shutdown mid-job: leave the message pending so another
			// consumer resumes from the recorded counts.
			return err
		}

		var reasons []string
		switch job.Kind {
		case domain.JobKindDealerImport:
			reasons = w.processDealerRow(ctx, job, row)
		case domain.JobKindPayoutImport:
			reasons = w.processPayoutRow(ctx, job, row)
		default:
			return streamq.Terminal(w.abort(jobID, "unknown job kind: "+string(job.Kind)))
		}

		success := len(reasons) == 0
		if !success {
			if err := w.tracker.AppendError(jobID, row.Ordinal, reasons); err != nil {
				return err
			}
		}
		if err := w.tracker.RecordOutcome(jobID, success); err != nil {
			return err
		}
		obs.RecordImportRow(string(job.Kind), success)
	}

	final, err := w.tracker.Finalize(jobID)
	if err != nil {
		return err
	}
	log.Printf("import job %s finished: status=%s success=%d failed=%d total=%d",
		jobID, final.Status, final.SuccessCount, final.FailureCount, final.TotalRecords)

	if job.Kind == domain.JobKindPayoutImport && w.cycleq != nil {
		// Chain the cycle totals refresh stage. Enqueue failure keeps the
		// message pending; Finalize above is idempotent on redelivery.
		enqueueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := w.cycleq.Enqueue(enqueueCtx, strconv.FormatInt(job.CycleID, 10)); err != nil {
			return err
		}
	}
	return nil
}

// abort marks the whole job Failed with a single synthetic error. Used when
// the file itself, not individual rows, is the problem.
func (w *Worker) abort(jobID, reason string) error {
	if err := w.tracker.FailJob(jobID, reason); err != nil {
		log.Printf("abort job %s: %v", jobID, err)
	}
	return errors.New(reason)
}

func (w *Worker) processDealerRow(ctx context.Context, job *domain.UploadJob, row tabfile.Row) []string {
	dealer, reasons := ParseDealerRow(row, job.SubmittedBy)
	if len(reasons) > 0 {
		return reasons
	}

	exists, err := w.records.DealerKeyExists(ctx, records.DealerKey{
		DealerCode: dealer.DealerCode,
		GSTNumber:  dealer.GSTNumber,
		PANNumber:  dealer.PANNumber,
	})
	if err != nil {
		return []string{err.Error()}
	}
	if exists {
		return []string{"Duplicate dealer_code, GST number, or PAN number"}
	}

	err = w.records.CreateDealer(ctx, dealer)
	if errors.Is(err, records.ErrDuplicateKey) {
		// Lost the race against a concurrent insert; same outcome as the
		// pre-check above.
		return []string{"Duplicate dealer_code, GST number, or PAN number"}
	}
	if err != nil {
		return []string{err.Error()}
	}

	// Approval request and audit trail are best-effort: the dealer row is
	// already committed, so their failure must not flip the row outcome.
	req := &records.ApprovalRequest{
		RequestNumber: fmt.Sprintf("DLR-BULK-%d-%d", time.Now().UnixMilli(), row.Ordinal),
		RequestType:   "DealerApproval",
		EntityType:    "Dealer",
		EntityID:      dealer.ID,
		CurrentStage:  "Created",
		NextStage:     "CheckerApproval",
		Status:        "Pending",
		AssignedRole:  "Checker",
		CreatedBy:     job.SubmittedBy,
	}
	if err := w.records.CreateApprovalRequest(ctx, req); err != nil {
		log.Printf("create approval request for dealer %s: %v", dealer.DealerCode, err)
	}
	w.audit(ctx, records.AuditEvent{
		EntityType: "Dealer",
		EntityID:   dealer.ID,
		Action:     "CREATE",
		NewValues: map[string]any{
			"dealer_code": dealer.DealerCode,
			"dealer_name": dealer.DealerName,
			"gst_number":  dealer.GSTNumber,
			"pan_number":  dealer.PANNumber,
			"state":       dealer.State,
		},
		PerformedBy: job.SubmittedBy,
		UserAgent:   "Bulk Upload Worker",
	})
	return nil
}

func (w *Worker) processPayoutRow(ctx context.Context, job *domain.UploadJob, row tabfile.Row) []string {
	parsed, reasons := ParsePayoutRow(row)
	if len(reasons) > 0 {
		return reasons
	}

	dealer, err := w.records.GetDealerByCode(ctx, parsed.DealerCode)
	if errors.Is(err, records.ErrNotFound) || (err == nil && dealer.Status != domain.DealerStatusApproved) {
		return []string{fmt.Sprintf("Dealer %s not found or not approved", parsed.DealerCode)}
	}
	if err != nil {
		return []string{err.Error()}
	}

	exists, err := w.records.PayoutCaseExists(ctx, job.CycleID, dealer.ID)
	if err != nil {
		return []string{err.Error()}
	}
	if exists {
		return []string{fmt.Sprintf("Payout case already exists for dealer %s in this cycle", parsed.DealerCode)}
	}

	result := calc.Apply(calc.Input{
		BaseAmount:      parsed.BaseAmount,
		IncentiveAmount: parsed.IncentiveAmount,
		DeductionAmount: parsed.DeductionAmount,
		RecoveryAmount:  parsed.RecoveryAmount,
	})

	trace, err := json.Marshal(result.Trace)
	if err != nil {
		return []string{fmt.Sprintf("Failed to encode calculation trace: %v", err)}
	}
	raw, err := json.Marshal(row.Fields)
	if err != nil {
		return []string{fmt.Sprintf("Failed to encode row data: %v", err)}
	}
	pc := &domain.PayoutCase{
		CaseNumber:      newCaseNumber(job.CycleID),
		CycleID:         job.CycleID,
		DealerID:        dealer.ID,
		PayoutType:      parsed.PayoutType,
		BaseAmount:      result.BaseAmount,
		IncentiveAmount: result.CalculatedIncentive,
		DeductionAmount: result.DeductionAmount,
		RecoveryAmount:  result.RecoveryAmount,
		NetAmount:       result.NetAmount,
		Status:          domain.PayoutCaseStatusGenerated,
		CalcTrace:       trace,
		RawRow:          raw,
	}

	err = w.records.CreatePayoutCase(ctx, pc)
	if errors.Is(err, records.ErrDuplicateKey) {
		return []string{fmt.Sprintf("Payout case already exists for dealer %s in this cycle", parsed.DealerCode)}
	}
	if err != nil {
		return []string{err.Error()}
	}

	w.audit(ctx, records.AuditEvent{
		EntityType: "PayoutCase",
		EntityID:   pc.ID,
		Action:     "CREATE",
		NewValues: map[string]any{
			"case_number": pc.CaseNumber,
			"cycle_id":    pc.CycleID,
			"dealer_id":   pc.DealerID,
			"net_amount":  pc.NetAmount,
		},
		PerformedBy: job.SubmittedBy,
		UserAgent:   "Bulk Upload Worker",
	})
	return nil
}

func (w *Worker) audit(ctx context.Context, ev records.AuditEvent) {
	if err := w.records.AppendAudit(ctx, ev); err != nil {
		log.Printf("audit %s/%d %s: %v", ev.EntityType, ev.EntityID, ev.Action, err)
	}
}

func newCaseNumber(cycleID int64) string {
	return fmt.Sprintf("CASE-%d-%d-%s", cycleID, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func readEnvIntDefault(key string, defaultVal int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return n
}

func readEnvDurationSecondsDefault(key string, defaultVal time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}
