package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dealerpay/filestore"
	"dealerpay/importer"
	"dealerpay/obs"
	"dealerpay/records"
	"dealerpay/store"
	"dealerpay/streamq"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	shutdownObs, logger := obs.Init("import-api")
	defer func() { _ = shutdownObs(context.Background()) }()

	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if redisAddr == "" {
		log.Fatalf("REDIS_ADDR is empty: job store and queue require Redis")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DB:       readEnvIntDefault("REDIS_DB", 0),
	})

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatalf("DATABASE_URL is empty")
	}
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := records.Connect(connectCtx, databaseURL, int32(readEnvIntDefault("DB_MAX_CONNS", 8)))
	cancel()
	if err != nil {
		log.Fatalf("connect database failed: %v", err)
	}
	defer pool.Close()
	recStore := records.NewPostgresStore(pool)

	jobStore, err := store.NewRedisUploadJobStore(rdb)
	if err != nil {
		log.Fatalf("init job store failed: %v", err)
	}
	tracker := store.Tracker{Jobs: jobStore}

	var files filestore.FileStore
	if oss, enabled, err := filestore.NewOSSFromEnv(); err != nil {
		if enabled {
			log.Fatalf("init oss store failed: %v", err)
		}
	} else if enabled {
		files = oss
		logger.Info("oss file store enabled", "bucket", strings.TrimSpace(os.Getenv("OSS_BUCKET")))
	}
	if files == nil {
		files = filestore.NewRedisStore(rdb)
		logger.Info("redis file store enabled")
	}

	maxLen := int64(readEnvIntDefault("IMPORT_STREAM_MAXLEN", 100000))
	dealerq := streamq.NewRedisStreamQueue(rdb,
		readEnvDefault("DEALER_IMPORT_STREAM_KEY", "dp:imports:dealer:stream"),
		readEnvDefault("DEALER_IMPORT_STREAM_GROUP", "dp-dealer-import"),
		maxLen)
	payoutq := streamq.NewRedisStreamQueue(rdb,
		readEnvDefault("PAYOUT_IMPORT_STREAM_KEY", "dp:imports:payout:stream"),
		readEnvDefault("PAYOUT_IMPORT_STREAM_GROUP", "dp-payout-import"),
		maxLen)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	importSvc := importer.NewService(tracker, recStore, files, dealerq, payoutq)
	importSvc.RegisterRoutes(mux)

	addr := ":" + readEnvDefault("PORT", "8080")
	logger.Info("import api listening", "addr", addr)
	// Wrap order: cors -> otel/metrics -> mux
	handler := corsMiddleware(obs.WrapHTTP("import-api", mux))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readEnvDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

func readEnvIntDefault(key string, defaultVal int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func corsMiddleware(next http.Handler) http.Handler {
	allowOrigin := readEnvDefault("CORS_ALLOW_ORIGIN", "http://localhost:5173")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
