package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dealerpay/cyclesync"
	"dealerpay/filestore"
	"dealerpay/importer"
	"dealerpay/obs"
	"dealerpay/records"
	"dealerpay/redislock"
	"dealerpay/store"
	"dealerpay/streamq"
)

func main() {
	shutdownObs, logger := obs.Init("import-worker")
	defer func() { _ = shutdownObs(context.Background()) }()

	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if redisAddr == "" {
		log.Fatalf("REDIS_ADDR is empty")
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
	if err := records.RunMigrations(databaseURL); err != nil {
		log.Fatalf("run migrations failed: %v", err)
	}
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := records.Connect(connectCtx, databaseURL, int32(readEnvIntDefault("DB_MAX_CONNS", 8)))
	cancelConnect()
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

	ctx, cancel := signalContext()
	defer cancel()

	maxLen := int64(readEnvIntDefault("IMPORT_STREAM_MAXLEN", 100000))
	dealerStream := readEnvDefault("DEALER_IMPORT_STREAM_KEY", "dp:imports:dealer:stream")
	dealerGroup := readEnvDefault("DEALER_IMPORT_STREAM_GROUP", "dp-dealer-import")
	payoutStream := readEnvDefault("PAYOUT_IMPORT_STREAM_KEY", "dp:imports:payout:stream")
	payoutGroup := readEnvDefault("PAYOUT_IMPORT_STREAM_GROUP", "dp-payout-import")
	cycleStream := readEnvDefault("CYCLE_SYNC_STREAM_KEY", "dp:cycles:sync:stream")
	cycleGroup := readEnvDefault("CYCLE_SYNC_STREAM_GROUP", "dp-cycle-sync")

	dealerq := streamq.NewRedisStreamQueue(rdb, dealerStream, dealerGroup, maxLen)
	payoutq := streamq.NewRedisStreamQueue(rdb, payoutStream, payoutGroup, maxLen)
	cycleq := streamq.NewRedisStreamQueue(rdb, cycleStream, cycleGroup, maxLen)
	for _, q := range []*streamq.RedisStreamQueue{dealerq, payoutq, cycleq} {
		if err := q.EnsureGroup(ctx); err != nil {
			log.Fatalf("ensure stream group failed: %v", err)
		}
	}

	lock := redislock.New(rdb, readEnvDefault("IMPORT_JOB_LOCK_PREFIX", "dp:lock:uploadjob:"))
	worker := importer.NewWorker(tracker, recStore, files, cycleq, lock)
	cycleWorker := cyclesync.NewWorker(recStore, lock)

	consumerName := strings.TrimSpace(os.Getenv("WORKER_CONSUMER_NAME"))
	if consumerName == "" {
		consumerName = strings.TrimSpace(os.Getenv("HOSTNAME"))
	}
	concurrency := readEnvIntDefault("STREAM_CONCURRENCY", 4)
	leaseWindow := time.Duration(readEnvIntDefault("STREAM_LEASE_SECONDS", 30)) * time.Second

	go serveMetrics(readEnvDefault("METRICS_ADDR", ":9090"))

	var wg sync.WaitGroup
	consume := func(stream, group string, handler streamq.Handler) {
		cons := streamq.NewConsumer(rdb, stream, group, consumerName)
		cons.SetConcurrency(concurrency)
		cons.SetLeaseWindow(leaseWindow)
		log.Printf("import-worker start stream=%s group=%s consumer=%s", stream, group, consumerName)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cons.ConsumeLoop(ctx, handler); err != nil && err != context.Canceled {
				log.Printf("consume loop exited stream=%s: %v", stream, err)
				cancel()
			}
		}()
	}

	consume(dealerStream, dealerGroup, worker.Process)
	consume(payoutStream, payoutGroup, worker.Process)
	consume(cycleStream, cycleGroup, cycleWorker.Process)

	wg.Wait()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           obs.WrapHTTP("import-worker-metrics", mux),
		ReadHeaderTimeout: 3 * time.Second,
	}
	_ = srv.ListenAndServe()
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
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		// second signal: hard exit
		select {
		case <-ch:
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()
	return ctx, cancel
}
