// Command bridge-gateway accepts algorithm run requests over HTTP, enqueues
// them for bridge-worker and serves their status and stored reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/bridge/internal/queue"
	"github.com/luxfi/bridge/internal/storage"
)

// maxRequest bounds the body of a job submission.
const maxRequest = 1 << 16

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/tmp/bridge-storage", "report storage path")
		useBadger   = flag.Bool("badger", false, "read reports from BadgerDB instead of flat files")
		httpAddr    = flag.String("http", ":8080", "HTTP API address")
	)
	flag.Parse()

	log.Printf("Bridge gateway starting...")
	log.Printf("  Redis: %s", *redisAddr)
	log.Printf("  Storage: %s (badger=%t)", *storagePath, *useBadger)
	log.Printf("  HTTP: %s", *httpAddr)

	// Queue.
	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr: *redisAddr,
		DB:   *redisDB,
	}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	// Storage.
	var store storage.Storage
	if *useBadger {
		store, err = storage.NewBadgerStorage(*storagePath)
	} else {
		store, err = storage.NewFileStorage(*storagePath)
	}
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	gw := &gateway{queue: q, storage: store}
	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      gw.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server starting on %s", *httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// lengther is implemented by queues that can report their backlog.
type lengther interface {
	Len(ctx context.Context) (int64, error)
}

type gateway struct {
	queue   queue.Queue
	storage storage.Storage
}

func (g *gateway) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", g.status)
	mux.HandleFunc("POST /jobs", g.submit)
	mux.HandleFunc("GET /job/{id}", g.job)
	mux.HandleFunc("GET /result/{handle}", g.result)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func (g *gateway) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "running"}
	if l, ok := g.queue.(lengther); ok {
		n, err := l.Len(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		resp["pending"] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// submit enqueues a run request. Fields the server owns are reset, so a
// client cannot forge a result handle or a status.
func (g *gateway) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequest))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var job queue.Job
	if err := json.Unmarshal(body, &job); err != nil {
		http.Error(w, fmt.Sprintf("decode job: %v", err), http.StatusBadRequest)
		return
	}
	job.ID = ""
	job.ResultHandle = ""
	job.Error = ""

	if err := g.queue.Push(r.Context(), &job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrInvalidJob) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	log.Printf("job %s %s (%s strategy=%s bits=%d size=%d)",
		job.ID, job.Status, job.Algorithm, job.Strategy, job.BitWidth, job.Size)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": job.Status.String()})
}

func (g *gateway) job(w http.ResponseWriter, r *http.Request) {
	job, err := g.queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*queue.Job
		State string `json:"state"`
	}{job, job.Status.String()})
}

func (g *gateway) result(w http.ResponseWriter, r *http.Request) {
	handle := storage.Handle(r.PathValue("handle"))
	data, err := g.storage.Load(r.Context(), handle)
	switch {
	case errors.Is(err, storage.ErrInvalidHandle):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
