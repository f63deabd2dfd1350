// Package queue carries algorithm run requests between producers and
// bridge workers.
package queue

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

// Common errors.
var (
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrJobNotFound    = errors.New("job not found")
	ErrConnectionLost = errors.New("queue connection lost")
	ErrInvalidJob     = errors.New("invalid job")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Algorithms lists the algorithm names a job may request.
var Algorithms = []string{"tree", "sort", "floyd", "db", "workload"}

// Job is one encrypted algorithm run. Inputs are generated from Seed, so a
// job is reproducible from its fields alone.
type Job struct {
	ID           string    `json:"id"`
	Algorithm    string    `json:"algorithm"`
	Strategy     string    `json:"strategy"`
	BitWidth     int       `json:"bit_width"`
	Size         int       `json:"size"`
	Slots        int       `json:"slots"`
	Seed         uint64    `json:"seed"`
	Workload     string    `json:"workload,omitempty"`
	Insecure     bool      `json:"insecure,omitempty"`
	ResultHandle string    `json:"result_handle,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the request fields.
func (j *Job) Validate() error {
	known := false
	for _, a := range Algorithms {
		known = known || a == j.Algorithm
	}
	switch {
	case !known:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidJob, j.Algorithm)
	case j.Strategy == "":
		return fmt.Errorf("%w: no strategy", ErrInvalidJob)
	case j.BitWidth <= 0:
		return fmt.Errorf("%w: bit width %d", ErrInvalidJob, j.BitWidth)
	case j.Size <= 0:
		return fmt.Errorf("%w: size %d", ErrInvalidJob, j.Size)
	case j.Slots <= 0:
		return fmt.Errorf("%w: slots %d", ErrInvalidJob, j.Slots)
	}
	return nil
}

// ComputeID returns the hex blake3 digest of the request fields, so
// identical requests share an ID.
func (j *Job) ComputeID() string {
	req := struct {
		Algorithm string `json:"algorithm"`
		Strategy  string `json:"strategy"`
		BitWidth  int    `json:"bit_width"`
		Size      int    `json:"size"`
		Slots     int    `json:"slots"`
		Seed      uint64 `json:"seed"`
		Workload  string `json:"workload"`
		Insecure  bool   `json:"insecure"`
	}{j.Algorithm, j.Strategy, j.BitWidth, j.Size, j.Slots, j.Seed, j.Workload, j.Insecure}
	data, _ := json.Marshal(req)
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Push adds a job to the queue, assigning an ID if it has none. A job
	// whose ID is already recorded and has not failed is not queued again;
	// job is overwritten with the stored record.
	Push(ctx context.Context, job *Job) error
	// Pop retrieves and removes the next job, blocking until one arrives.
	Pop(ctx context.Context) (*Job, error)
	// Update updates job status.
	Update(ctx context.Context, job *Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// Close closes the queue connection.
	Close() error
}

// rerun reports whether a push that collides with an existing record
// should enqueue the job again. Only failed runs are retried; pending,
// processing and completed records answer the push as they are.
func rerun(existing *Job) bool {
	return existing.Status == StatusFailed
}

func prepare(job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = job.ComputeID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending
	return nil
}

// RedisQueue implements Queue using Redis.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisQueue(client, queueName), nil
}

func newRedisQueue(client *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueKey:  "bridge:queue:" + queueName,
		jobPrefix: "bridge:job:",
		ttl:       24 * time.Hour,
	}
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	if err := prepare(job); err != nil {
		return err
	}
	existing, err := q.Get(ctx, job.ID)
	switch {
	case err == nil && !rerun(existing):
		*job = *existing
		return nil
	case err != nil && !errors.Is(err, ErrJobNotFound):
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, q.ttl)
	pipe.LPush(ctx, q.queueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrConnectionLost
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return q.Get(ctx, result[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, q.jobPrefix+job.ID, data, q.ttl).Err(); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
