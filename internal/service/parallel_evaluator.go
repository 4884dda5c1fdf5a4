package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
)

// EvaluationOutcome pairs a constraint id with its result or an error message.
type EvaluationOutcome struct {
	ConstraintID string                  `json:"constraint_id"`
	Result       models.ConstraintResult `json:"result"`
	Error        string                  `json:"error,omitempty"`
}

// EvaluatorConfig configures the worker pool.
type EvaluatorConfig struct {
	Workers     int
	QueueSize   int
	BatchSize   int
	TaskTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *MetricsService
}

// EvaluatorMetrics is a read-only aggregate snapshot. Raw per-task timings are
// not retained.
type EvaluatorMetrics struct {
	TotalEvaluations      int64         `json:"total_evaluations"`
	AverageEvaluationTime time.Duration `json:"average_evaluation_time"`
	WorkerUtilization     float64       `json:"worker_utilization"`
}

type evalTask struct {
	id         int
	constraint models.UnifiedConstraint
	slot       models.ScheduleSlot
	done       chan EvaluationOutcome
}

// ParallelEvaluator fans constraint evaluations out across a fixed pool of
// long-lived workers. Tasks queue when all workers are busy and the first free
// worker picks up the next queued task, so faster constraints drain
// proportionally more of the queue. Results are collated by task id, never by
// completion order.
type ParallelEvaluator struct {
	workers     int
	queueSize   int
	batchSize   int
	taskTimeout time.Duration
	logger      *zap.Logger
	metrics     *MetricsService

	tasks   chan *evalTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	totalEvals int64
	busyNanos  int64
	busy       int32
	sinceReset atomic.Int64 // unix nanos of last metrics reset
}

// NewParallelEvaluator builds the evaluator with sane defaults.
func NewParallelEvaluator(cfg EvaluatorConfig) *ParallelEvaluator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Workers > 8 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 5 {
		cfg.BatchSize = 5
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &ParallelEvaluator{
		workers:     cfg.Workers,
		queueSize:   cfg.QueueSize,
		batchSize:   cfg.BatchSize,
		taskTimeout: cfg.TaskTimeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tasks:       make(chan *evalTask, cfg.QueueSize),
	}
}

// Start spins up the worker pool. Safe to call once.
func (e *ParallelEvaluator) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.sinceReset.Store(time.Now().UnixNano())
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i + 1)
	}
	e.started = true
	e.logger.Sugar().Infow("evaluator started", "workers", e.workers, "queue_size", e.queueSize)
}

// Stop cancels workers and waits for them to exit.
func (e *ParallelEvaluator) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.started = false
	e.mu.Unlock()
	e.wg.Wait()
	e.logger.Sugar().Infow("evaluator stopped")
}

// EvaluateConstraints dispatches every constraint against the slot and waits
// for all results, honouring the per-task deadline. The returned slice
// preserves input order: result[i] corresponds to constraints[i].
func (e *ParallelEvaluator) EvaluateConstraints(ctx context.Context, constraints []models.UnifiedConstraint, slot models.ScheduleSlot) ([]EvaluationOutcome, error) {
	e.mu.Lock()
	started := e.started
	poolCtx := e.ctx
	e.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("evaluator not started")
	}

	// Each per-task timer starts at enqueue, so taskTimeout bounds the whole
	// dispatch-to-collation span including queue wait, not just evaluator
	// runtime. A result that lands after its timer fired is reported as a
	// timeout.
	tasks := make([]*evalTask, len(constraints))
	timers := make([]*time.Timer, len(constraints))
	dispatchFailure := ""
	for i, c := range constraints {
		task := &evalTask{id: i, constraint: c, slot: slot, done: make(chan EvaluationOutcome, 1)}
		select {
		case e.tasks <- task:
			tasks[i] = task
			timers[i] = time.NewTimer(e.taskTimeout)
		case <-ctx.Done():
			dispatchFailure = "Evaluation error: cancelled before dispatch"
		case <-poolCtx.Done():
			dispatchFailure = "Evaluation error: evaluator shutting down"
		}
		if timers[i] == nil {
			// remaining tasks are never dispatched
			break
		}
	}

	results := make([]EvaluationOutcome, len(constraints))
	for i := range constraints {
		task := tasks[i]
		if task == nil || timers[i] == nil {
			results[i] = errorOutcome(constraints[i].ID, dispatchFailure)
			continue
		}
		select {
		case out := <-task.done:
			timers[i].Stop()
			results[i] = out
		case <-timers[i].C:
			results[i] = errorOutcome(task.constraint.ID,
				fmt.Sprintf("Evaluation error: task timeout after %s", e.taskTimeout))
			e.logger.Sugar().Warnw("constraint evaluation timeout",
				"constraint_id", task.constraint.ID, "timeout", e.taskTimeout)
		}
	}
	return results, nil
}

// EvaluateBatch partitions large constraint sets into bounded batches before
// dispatch and concatenates the per-batch results in input order.
func (e *ParallelEvaluator) EvaluateBatch(ctx context.Context, constraints []models.UnifiedConstraint, slot models.ScheduleSlot) ([]EvaluationOutcome, error) {
	results := make([]EvaluationOutcome, 0, len(constraints))
	for start := 0; start < len(constraints); start += e.batchSize {
		end := start + e.batchSize
		if end > len(constraints) {
			end = len(constraints)
		}
		batch, err := e.EvaluateConstraints(ctx, constraints[start:end], slot)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

// Metrics returns the aggregate counters since the last reset.
func (e *ParallelEvaluator) Metrics() EvaluatorMetrics {
	total := atomic.LoadInt64(&e.totalEvals)
	busy := atomic.LoadInt64(&e.busyNanos)

	var avg time.Duration
	if total > 0 {
		avg = time.Duration(busy / total)
	}

	var utilization float64
	elapsed := time.Now().UnixNano() - e.sinceReset.Load()
	if elapsed > 0 {
		utilization = float64(busy) / (float64(elapsed) * float64(e.workers))
		if utilization > 1 {
			utilization = 1
		}
	}

	return EvaluatorMetrics{
		TotalEvaluations:      total,
		AverageEvaluationTime: avg,
		WorkerUtilization:     utilization,
	}
}

// ResetMetrics clears the aggregate counters.
func (e *ParallelEvaluator) ResetMetrics() {
	atomic.StoreInt64(&e.totalEvals, 0)
	atomic.StoreInt64(&e.busyNanos, 0)
	e.sinceReset.Store(time.Now().UnixNano())
}

func (e *ParallelEvaluator) worker(id int) {
	defer func() {
		if r := recover(); r != nil {
			// A crashed worker is replaced immediately so the pool keeps
			// its configured size.
			e.logger.Sugar().Errorw("worker crashed, respawning", "worker", id, "panic", r)
			e.wg.Add(1)
			go e.worker(id)
		}
		e.wg.Done()
	}()

	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.tasks:
			task.done <- e.runTask(task)
		}
	}
}

// runTask isolates a single evaluation: an evaluator panic resolves only this
// task as an error, the worker survives.
func (e *ParallelEvaluator) runTask(task *evalTask) (outcome EvaluationOutcome) {
	start := time.Now()
	atomic.AddInt32(&e.busy, 1)
	defer func() {
		elapsed := time.Since(start)
		atomic.AddInt32(&e.busy, -1)
		atomic.AddInt64(&e.totalEvals, 1)
		atomic.AddInt64(&e.busyNanos, int64(elapsed))
		if r := recover(); r != nil {
			e.logger.Sugar().Errorw("evaluator panic",
				"constraint_id", task.constraint.ID, "panic", r)
			outcome = errorOutcome(task.constraint.ID, fmt.Sprintf("Evaluation error: %v", r))
		}
		if e.metrics != nil {
			e.metrics.ObserveConstraintEvaluation(string(task.constraint.Type), elapsed, outcome.Error == "")
		}
	}()

	if task.constraint.Evaluator == nil {
		return errorOutcome(task.constraint.ID, "Evaluation error: constraint has no evaluator")
	}

	result := task.constraint.Evaluator(task.slot, task.constraint.Parameters)
	if result.Metrics == nil {
		result.Metrics = &models.EvaluationMetrics{EvaluationTime: time.Since(start)}
	}
	return EvaluationOutcome{ConstraintID: task.constraint.ID, Result: result}
}

func errorOutcome(constraintID, message string) EvaluationOutcome {
	return EvaluationOutcome{
		ConstraintID: constraintID,
		Error:        message,
		Result: models.ConstraintResult{
			Valid:      false,
			Score:      0,
			Violations: []models.Violation{{Description: message}},
		},
	}
}
