package importer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealerpay/domain"
	"dealerpay/filestore"
	"dealerpay/records"
	"dealerpay/store"
	"dealerpay/streamq"
)

// Service is the submission gateway: it accepts upload files, registers the
// job record, stores the raw file and enqueues the job for a worker. It never
// processes rows itself.
type Service struct {
	tracker store.Tracker
	records records.Store
	files   filestore.FileStore
	dealerq streamq.JobQueue
	payoutq streamq.JobQueue
}

func NewService(tr store.Tracker, rec records.Store, files filestore.FileStore, dealerq, payoutq streamq.JobQueue) *Service {
	return &Service{
		tracker: tr,
		records: rec,
		files:   files,
		dealerq: dealerq,
		payoutq: payoutq,
	}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/imports/dealers", s.handleDealerUpload)
	mux.HandleFunc("/imports/payouts/", s.handlePayoutUpload)
	mux.HandleFunc("/imports/jobs", s.handleListJobs)
	mux.HandleFunc("/imports/jobs/", s.handleGetJob)
}

func (s *Service) handleDealerUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.acceptUpload(w, r, domain.JobKindDealerImport, 0)
}

func (s *Service) handlePayoutUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// /imports/payouts/{cycleId}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/imports/payouts/"), "/")
	cycleID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cycleID <= 0 {
		http.Error(w, "cycleId required", http.StatusBadRequest)
		return
	}

	// Reject uploads into cycles that do not exist before accepting the file.
	checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	_, err = s.records.GetCycle(checkCtx, cycleID)
	if errors.Is(err, records.ErrNotFound) {
		http.Error(w, "payout cycle not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	s.acceptUpload(w, r, domain.JobKindPayoutImport, cycleID)
}

func (s *Service) acceptUpload(w http.ResponseWriter, r *http.Request, kind domain.JobKind, cycleID int64) {
	maxUploadMB := readEnvIntDefault("IMPORT_MAX_UPLOAD_MB", 64)
	if maxUploadMB <= 0 {
		maxUploadMB = 64
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxUploadMB)<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	var (
		fileName        string
		fileData        []byte
		submittedBy     int64
		submittedByName string
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, "invalid multipart stream", http.StatusBadRequest)
			return
		}
		if part == nil {
			continue
		}
		switch strings.TrimSpace(part.FormName()) {
		case "file":
			data, err := io.ReadAll(part)
			_ = part.Close()
			if err != nil {
				http.Error(w, "failed to read file", http.StatusBadRequest)
				return
			}
			fileData = data
			fileName = part.FileName()
		case "submittedBy":
			raw, _ := io.ReadAll(part)
			_ = part.Close()
			submittedBy, _ = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		case "submittedByName":
			raw, _ := io.ReadAll(part)
			_ = part.Close()
			submittedByName = strings.TrimSpace(string(raw))
		default:
			// Drain unknown parts to keep the parser healthy.
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
		}
	}
	if len(fileData) == 0 {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}

	job, err := s.tracker.CreateJob(kind, fileName, "", submittedBy, submittedByName, cycleID)
	if err != nil {
		http.Error(w, "failed to register job", http.StatusInternalServerError)
		return
	}

	fileKey := filestore.KeyForUpload("import-uploads", job.ID, fileName)
	putCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.files.Put(putCtx, fileKey, fileData, contentTypeByName(fileName)); err != nil {
		_ = s.tracker.FailJob(job.ID, "failed to store uploaded file: "+err.Error())
		http.Error(w, "failed to store uploaded file", http.StatusBadGateway)
		return
	}
	if _, _, err := s.tracker.Jobs.Update(job.ID, func(j *domain.UploadJob) {
		j.FileKey = fileKey
	}); err != nil {
		http.Error(w, "failed to register job", http.StatusInternalServerError)
		return
	}

	q := s.dealerq
	if kind == domain.JobKindPayoutImport {
		q = s.payoutq
	}
	enqueueCtx, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel2()
	if err := q.Enqueue(enqueueCtx, job.ID); err != nil {
		_ = s.tracker.FailJob(job.ID, "failed to enqueue job: "+err.Error())
		http.Error(w, "failed to enqueue job", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": string(job.Status),
	})
}

func (s *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/imports/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "jobId required", http.StatusBadRequest)
		return
	}

	job, ok, err := s.tracker.Jobs.Get(jobID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind := domain.JobKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	switch kind {
	case "", domain.JobKindDealerImport, domain.JobKindPayoutImport:
	default:
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := s.tracker.Jobs.List(kind, limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}

func contentTypeByName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(n, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(n, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
