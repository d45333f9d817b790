// Package cyclesync recomputes payout cycle totals after a payout import
// finishes. The message payload is the cycle ID; the recompute is a single
// idempotent aggregation, so redeliveries are harmless.
package cyclesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"dealerpay/obs"
	"dealerpay/records"
	"dealerpay/redislock"
	"dealerpay/streamq"
)

type Worker struct {
	records  records.Store
	lock     *redislock.Client
	lockTTL  time.Duration
	lockKick time.Duration
}

func NewWorker(rec records.Store, lock *redislock.Client) *Worker {
	lockTTL := readEnvDurationSecondsDefault("CYCLE_SYNC_LOCK_TTL_SECONDS", 5*time.Minute)
	lockKick := readEnvDurationSecondsDefault("CYCLE_SYNC_LOCK_REFRESH_SECONDS", 10*time.Second)
	if lockKick <= 0 {
		lockKick = 10 * time.Second
	}
	return &Worker{
		records:  rec,
		lock:     lock,
		lockTTL:  lockTTL,
		lockKick: lockKick,
	}
}

func (w *Worker) Process(ctx context.Context, payload string) error {
	if w == nil || w.records == nil {
		return errors.New("cyclesync worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	payload = strings.TrimSpace(payload)
	cycleID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || cycleID <= 0 {
		return streamq.Terminal(fmt.Errorf("bad cycle id payload: %q", payload))
	}

	// Distributed lock: one recompute per cycle at a time across replicas.
	if w.lock != nil {
		token, err := redislock.Token()
		if err != nil {
			return err
		}
		lockKey := w.lock.Key("cyclesync:" + payload)
		ok, err := w.lock.Acquire(ctx, lockKey, token, w.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			// Another replica is already recomputing this cycle.
			return streamq.Terminal(fmt.Errorf("cycle sync locked: %s", lockKey))
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
					_, _ = w.lock.Refresh(context.Background(), lockKey, token, w.lockTTL)
				}
			}
		}()
	}

	cycle, err := w.records.RefreshCycleTotals(ctx, cycleID)
	if errors.Is(err, records.ErrNotFound) {
		obs.RecordWorkerJob("cyclesync", start, nil)
		return streamq.Terminal(fmt.Errorf("cycle %d not found", cycleID))
	}
	if err != nil {
		// transient database error: keep pending for redelivery
		obs.RecordWorkerJob("cyclesync", start, err)
		return err
	}

	log.Printf("cycle %d totals refreshed: cases=%d amount=%.2f status=%s",
		cycle.ID, cycle.TotalCases, cycle.TotalAmount, cycle.Status)
	obs.RecordWorkerJob("cyclesync", start, nil)
	return nil
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
