// Package worker consumes job messages, claims the matching records and runs
// the analysis engine with cooperative cancellation and a wall-clock timeout.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/smartcomp/smartcomp-be/internal/analysis"
	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/storage"
	"github.com/smartcomp/smartcomp-be/shared/rabbitmq"
)

// jobStore is the slice of the record store the worker needs.
type jobStore interface {
	Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, p domain.Progress) error
	Complete(ctx context.Context, jobID string, result json.RawMessage) (bool, error)
	Fail(ctx context.Context, jobID, code, message string) (bool, error)
	CancelRunning(ctx context.Context, jobID string) (bool, error)
}

// runner executes one claimed job.
type runner interface {
	Run(ctx context.Context, job *domain.Job, cfg domain.EffectiveConfig, paths storage.JobPaths,
		progress analysis.ProgressFunc, guard analysis.GuardFunc) (json.RawMessage, error)
}

// Config holds worker configuration
type Config struct {
	Logger             *slog.Logger
	Store              *storage.JobStore
	RabbitClient       *rabbitmq.Client
	Engine             *analysis.Engine
	StorageRoot        string
	Concurrency        int
	MaxJobs            int
	JobTimeout         time.Duration
	ProgressInterval   time.Duration
	CancelPollInterval time.Duration
	PrefetchCount      int
	QueueName          string
}

// Worker represents the background job worker
type Worker struct {
	logger             *slog.Logger
	store              jobStore
	rabbitClient       *rabbitmq.Client
	engine             runner
	storageRoot        string
	concurrency        int
	jobTimeout         time.Duration
	progressInterval   time.Duration
	cancelPollInterval time.Duration
	prefetchCount      int
	queueName          string
	workerID           string

	// sem caps jobs in flight across the whole process, independent of the
	// goroutine count.
	sem      *semaphore.Weighted
	jobsChan chan *jobMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = cfg.Concurrency
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}
	cancelPoll := cfg.CancelPollInterval
	if cancelPoll <= 0 {
		cancelPoll = 500 * time.Millisecond
	}

	return &Worker{
		logger:             cfg.Logger,
		store:              cfg.Store,
		rabbitClient:       cfg.RabbitClient,
		engine:             cfg.Engine,
		storageRoot:        cfg.StorageRoot,
		concurrency:        cfg.Concurrency,
		jobTimeout:         cfg.JobTimeout,
		progressInterval:   cfg.ProgressInterval,
		cancelPollInterval: cancelPoll,
		prefetchCount:      prefetch,
		queueName:          cfg.QueueName,
		workerID:           fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		sem:                semaphore.NewWeighted(int64(maxJobs)),
		jobsChan:           make(chan *jobMessage),
		stopChan:           make(chan struct{}),
	}
}

// Start begins processing jobs and blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker context canceled, stopping")
	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
