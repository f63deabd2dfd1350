// Command bridge-worker consumes algorithm run jobs from a queue, runs them
// and stores the JSON report under its content handle.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luxfi/bridge"
	"github.com/luxfi/bridge/circuits"
	"github.com/luxfi/bridge/internal/queue"
	"github.com/luxfi/bridge/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		numWorkers  = flag.Int("workers", 2, "number of worker goroutines")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address, empty for an in-process queue")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/tmp/bridge-storage", "report storage path")
		useBadger   = flag.Bool("badger", false, "store reports in BadgerDB instead of flat files")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
	)
	flag.Parse()

	log.Printf("Bridge worker starting...")
	log.Printf("  Workers: %d", *numWorkers)
	log.Printf("  Redis: %q", *redisAddr)
	log.Printf("  Storage: %s (badger=%t)", *storagePath, *useBadger)
	log.Printf("  Metrics: %s", *metricsAddr)

	// Queue.
	var q queue.Queue
	if *redisAddr == "" {
		q = queue.NewMemoryQueue(64)
	} else {
		rq, err := queue.NewRedisQueue(queue.RedisConfig{
			Addr: *redisAddr,
			DB:   *redisDB,
		}, *queueName)
		if err != nil {
			return fmt.Errorf("create queue: %w", err)
		}
		q = rq
	}
	defer q.Close()

	// Storage.
	var (
		store storage.Storage
		err   error
	)
	if *useBadger {
		store, err = storage.NewBadgerStorage(*storagePath)
	} else {
		store, err = storage.NewFileStorage(*storagePath)
	}
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	pool := &WorkerPool{
		numWorkers: *numWorkers,
		queue:      q,
		storage:    store,
		runner:     circuits.Run,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	server := &http.Server{
		Addr:              *metricsAddr,
		Handler:           pool.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Metrics server starting on %s", *metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	if err := pool.Stop(); err != nil {
		log.Printf("Worker pool shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
	return nil
}

// runner executes one algorithm run.
type runner func(ctx context.Context, cfg circuits.RunConfig) (*circuits.Report, error)

// WorkerPool manages a pool of algorithm run workers.
type WorkerPool struct {
	numWorkers    int
	queue         queue.Queue
	storage       storage.Storage
	runner        runner
	wg            sync.WaitGroup
	cancel        context.CancelFunc
	running       atomic.Bool
	successCount  atomic.Int64
	failureCount  atomic.Int64
	mismatchCount atomic.Int64
	evalNanos     atomic.Int64
}

// Start starts the worker pool.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pool already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	log.Printf("Starting %d workers", p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop gracefully stops the worker pool.
func (p *WorkerPool) Stop() error {
	if !p.running.Load() {
		return nil
	}
	log.Println("Stopping worker pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool stopped")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}
	p.running.Store(false)
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrConnectionLost) {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		p.processJob(ctx, id, job)
	}
}

func (p *WorkerPool) fail(ctx context.Context, job *queue.Job, format string, args ...any) {
	job.Status = queue.StatusFailed
	job.Error = fmt.Sprintf(format, args...)
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("failed to update job %s: %v", job.ID, err)
	}
	p.failureCount.Add(1)
	log.Printf("job %s failed: %s", job.ID, job.Error)
}

// runConfig maps a job onto a run configuration.
func runConfig(job *queue.Job) (circuits.RunConfig, error) {
	cfg := circuits.RunConfig{
		BitWidth: job.BitWidth,
		Size:     job.Size,
		Slots:    job.Slots,
		Seed:     job.Seed,
		Insecure: job.Insecure,
	}
	var err error
	if cfg.Algorithm, err = circuits.ParseAlgorithm(job.Algorithm); err != nil {
		return cfg, err
	}
	if cfg.Strategy, err = bridge.ParseStrategy(job.Strategy); err != nil {
		return cfg, err
	}
	if job.Workload != "" {
		if cfg.Workload, err = circuits.ParseWorkload(job.Workload); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d: processing job %s (%s strategy=%s bits=%d size=%d)",
		workerID, job.ID, job.Algorithm, job.Strategy, job.BitWidth, job.Size)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	cfg, err := runConfig(job)
	if err != nil {
		p.fail(ctx, job, "decode job: %v", err)
		return
	}
	report, err := p.runner(ctx, cfg)
	if err != nil {
		p.fail(ctx, job, "run: %v", err)
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		p.fail(ctx, job, "marshal report: %v", err)
		return
	}
	handle, err := p.storage.Store(ctx, data)
	if err != nil {
		p.fail(ctx, job, "store report: %v", err)
		return
	}

	for _, d := range report.Eval {
		p.evalNanos.Add(int64(d))
	}
	if !report.Verified() {
		p.mismatchCount.Add(1)
	}

	job.Status = queue.StatusCompleted
	job.ResultHandle = string(handle)
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job result: %v", workerID, err)
	}
	p.successCount.Add(1)
	log.Printf("Worker %d: job %s completed (verified=%t)", workerID, job.ID, report.Verified())
}

func (p *WorkerPool) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP bridge_runs_total Total algorithm runs\n")
		fmt.Fprintf(w, "# TYPE bridge_runs_total counter\n")
		fmt.Fprintf(w, "bridge_runs_total{status=\"success\"} %d\n", p.successCount.Load())
		fmt.Fprintf(w, "bridge_runs_total{status=\"failure\"} %d\n", p.failureCount.Load())
		fmt.Fprintf(w, "# HELP bridge_runs_unverified_total Runs with lanes disagreeing with the reference\n")
		fmt.Fprintf(w, "# TYPE bridge_runs_unverified_total counter\n")
		fmt.Fprintf(w, "bridge_runs_unverified_total %d\n", p.mismatchCount.Load())
		fmt.Fprintf(w, "# HELP bridge_eval_seconds_total Time spent evaluating circuits\n")
		fmt.Fprintf(w, "# TYPE bridge_eval_seconds_total counter\n")
		fmt.Fprintf(w, "bridge_eval_seconds_total %g\n", time.Duration(p.evalNanos.Load()).Seconds())
	})
	return mux
}
