package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dealerpay/domain"
)

// UploadJobStore is the shared state store for upload jobs. Job raw files live
// in the filestore; this store only holds status/counts/errors so that job
// progress survives restarts and is pollable across pods.
type UploadJobStore interface {
	Create(job *domain.UploadJob) error
	Get(id string) (*domain.UploadJob, bool, error)
	Update(id string, fn func(j *domain.UploadJob)) (*domain.UploadJob, bool, error)
	List(kind domain.JobKind, limit int) ([]*domain.UploadJob, error)
}

type InMemoryUploadJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.UploadJob
}

func NewInMemoryUploadJobStore() *InMemoryUploadJobStore {
	return &InMemoryUploadJobStore{jobs: make(map[string]*domain.UploadJob)}
}

func (s *InMemoryUploadJobStore) Create(job *domain.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryUploadJobStore) Get(id string) (*domain.UploadJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j == nil {
		return nil, false, nil
	}
	cp := cloneJob(j)
	return cp, true, nil
}

func (s *InMemoryUploadJobStore) Update(id string, fn func(j *domain.UploadJob)) (*domain.UploadJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	fn(j)
	cp := cloneJob(j)
	return cp, true, nil
}

func (s *InMemoryUploadJobStore) List(kind domain.JobKind, limit int) ([]*domain.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.UploadJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if kind != "" && j.Kind != kind {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cloneJob returns a deep copy so callers can't mutate shared state outside the lock.
func cloneJob(j *domain.UploadJob) *domain.UploadJob {
	cp := *j
	if j.RowErrors != nil {
		cp.RowErrors = make([]domain.RowError, len(j.RowErrors))
		copy(cp.RowErrors, j.RowErrors)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

type uploadJobRecord struct {
	ID       string           `json:"id"`
	Kind     domain.JobKind   `json:"kind"`
	Filename string           `json:"filename"`
	Status   domain.JobStatus `json:"status"`

	SubmittedBy     int64  `json:"submittedBy"`
	SubmittedByName string `json:"submittedByName,omitempty"`
	CycleID         int64  `json:"cycleId,omitempty"`
	FileKey         string `json:"fileKey,omitempty"`

	TotalRecords    int               `json:"totalRecords"`
	ProcessedCount  int               `json:"processedCount"`
	SuccessCount    int               `json:"successCount"`
	FailureCount    int               `json:"failureCount"`
	ProgressPercent float64           `json:"progressPercent"`
	RowErrors       []domain.RowError `json:"rowErrors,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func recordFromJob(j *domain.UploadJob) uploadJobRecord {
	if j == nil {
		return uploadJobRecord{}
	}
	return uploadJobRecord{
		ID:              j.ID,
		Kind:            j.Kind,
		Filename:        j.Filename,
		Status:          j.Status,
		SubmittedBy:     j.SubmittedBy,
		SubmittedByName: j.SubmittedByName,
		CycleID:         j.CycleID,
		FileKey:         j.FileKey,
		TotalRecords:    j.TotalRecords,
		ProcessedCount:  j.ProcessedCount,
		SuccessCount:    j.SuccessCount,
		FailureCount:    j.FailureCount,
		ProgressPercent: j.ProgressPercent,
		RowErrors:       j.RowErrors,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func jobFromRecord(r uploadJobRecord) *domain.UploadJob {
	return &domain.UploadJob{
		ID:              r.ID,
		Kind:            r.Kind,
		Filename:        r.Filename,
		Status:          r.Status,
		SubmittedBy:     r.SubmittedBy,
		SubmittedByName: r.SubmittedByName,
		CycleID:         r.CycleID,
		FileKey:         r.FileKey,
		TotalRecords:    r.TotalRecords,
		ProcessedCount:  r.ProcessedCount,
		SuccessCount:    r.SuccessCount,
		FailureCount:    r.FailureCount,
		ProgressPercent: r.ProgressPercent,
		RowErrors:       r.RowErrors,
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

type RedisUploadJobStore struct {
	rdb       *redis.Client
	keyPrefix string
	idxPrefix string
	ttl       time.Duration
}

func readUploadJobTTL() time.Duration {
	raw := strings.TrimSpace(os.Getenv("UPLOAD_JOB_TTL_SECONDS"))
	if raw == "" {
		return 7 * 24 * time.Hour
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(n) * time.Second
}

func NewRedisUploadJobStore(rdb *redis.Client) (*RedisUploadJobStore, error) {
	if rdb == nil {
		return nil, errors.New("nil redis client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := readUploadJobTTL()
	log.Printf("upload job store: redis enabled ttl=%s", ttl)

	return &RedisUploadJobStore{
		rdb:       rdb,
		keyPrefix: "dp:uploadjob:",
		idxPrefix: "dp:uploadjobs:idx:",
		ttl:       ttl,
	}, nil
}

func (s *RedisUploadJobStore) key(id string) string {
	return s.keyPrefix + strings.TrimSpace(id)
}

func (s *RedisUploadJobStore) idxKey(kind domain.JobKind) string {
	return s.idxPrefix + string(kind)
}

func (s *RedisUploadJobStore) Create(job *domain.UploadJob) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return errors.New("empty job/id")
	}
	b, err := json.Marshal(recordFromJob(job))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.SetNX(ctx, s.key(job.ID), b, s.ttl).Err(); err != nil {
		return err
	}
	// Per-kind index for upload history, newest first by creation time.
	score := float64(job.CreatedAt.UnixMilli())
	if err := s.rdb.ZAdd(ctx, s.idxKey(job.Kind), redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.idxKey(job.Kind), s.ttl).Err()
}

func (s *RedisUploadJobStore) Get(id string) (*domain.UploadJob, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := s.rdb.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec uploadJobRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, false, err
	}
	return jobFromRecord(rec), true, nil
}

func (s *RedisUploadJobStore) Update(id string, fn func(j *domain.UploadJob)) (*domain.UploadJob, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}
	if fn == nil {
		return nil, false, errors.New("nil update fn")
	}

	key := s.key(id)

	var out *domain.UploadJob
	var ok bool

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	for i := 0; i < 8; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Result()
			if err == redis.Nil {
				ok = false
				out = nil
				return nil
			}
			if err != nil {
				return err
			}
			var rec uploadJobRecord
			if err := json.Unmarshal([]byte(val), &rec); err != nil {
				return err
			}
			j := jobFromRecord(rec)
			fn(j)
			out = j
			ok = true

			nb, err := json.Marshal(recordFromJob(j))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, nb, s.ttl)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return out, ok, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}

	return nil, false, errors.New("redis update retry exceeded")
}

func (s *RedisUploadJobStore) List(kind domain.JobKind, limit int) ([]*domain.UploadJob, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	kinds := []domain.JobKind{kind}
	if kind == "" {
		kinds = []domain.JobKind{domain.JobKindDealerImport, domain.JobKindPayoutImport}
	}

	var out []*domain.UploadJob
	for _, k := range kinds {
		ids, err := s.rdb.ZRevRange(ctx, s.idxKey(k), 0, int64(limit-1)).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		for _, id := range ids {
			j, ok, err := s.Get(id)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, j)
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
