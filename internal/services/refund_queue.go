package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wondr/rembg/internal/audit"
	"github.com/wondr/rembg/internal/config"
	"github.com/wondr/rembg/internal/metrics"
	"github.com/wondr/rembg/internal/models"
	"go.uber.org/zap"
)

const (
	refundQueueKey   = "refunds:pending"
	refundDonePrefix = "refunds:done:"
	refundDoneTTL    = 7 * 24 * time.Hour
)

func newTaskID() string {
	return uuid.NewString()
}

// RefundQueue is a Redis list of refunds still owed to users. Each task id
// doubles as an idempotency key: once applied, refunds:done:{id} is set and
// any copy of the task still in the list is skipped.
type RefundQueue struct {
	rdb *redis.Client
}

func NewRefundQueue(rdb *redis.Client) *RefundQueue {
	return &RefundQueue{rdb: rdb}
}

func (q *RefundQueue) Enqueue(ctx context.Context, task models.RefundTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal refund task: %w", err)
	}
	return q.rdb.RPush(ctx, refundQueueKey, data).Err()
}

// Pop removes the oldest task. It returns nil, nil when the queue is empty.
func (q *RefundQueue) Pop(ctx context.Context) (*models.RefundTask, error) {
	data, err := q.rdb.LPop(ctx, refundQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var task models.RefundTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("corrupt refund task %q: %w", data, err)
	}
	return &task, nil
}

func (q *RefundQueue) MarkDone(ctx context.Context, taskID string) error {
	return q.rdb.SetNX(ctx, refundDonePrefix+taskID, "1", refundDoneTTL).Err()
}

func (q *RefundQueue) IsDone(ctx context.Context, taskID string) (bool, error) {
	n, err := q.rdb.Exists(ctx, refundDonePrefix+taskID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *RefundQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, refundQueueKey).Result()
}

type refundApplier interface {
	ApplyRefund(ctx context.Context, identity string) (int64, error)
}

// RefundWorker drains the refund queue on a fixed interval.
type RefundWorker struct {
	queue    *RefundQueue
	refunder refundApplier
	cfg      config.RefundConfig
	audit    *audit.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewRefundWorker(queue *RefundQueue, refunder refundApplier, cfg config.RefundConfig, log *zap.Logger, auditLogger *audit.Logger, m *metrics.Metrics) *RefundWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &RefundWorker{
		queue:    queue,
		refunder: refunder,
		cfg:      cfg,
		audit:    auditLogger,
		metrics:  m,
		log:      log.Named("refunds"),
	}
}

// Run processes batches until ctx is cancelled
func (w *RefundWorker) Run(ctx context.Context) error {
	if w.cfg.Interval <= 0 || w.cfg.BatchSize <= 0 {
		return fmt.Errorf("refund worker needs a positive interval and batch size, got %s and %d", w.cfg.Interval, w.cfg.BatchSize)
	}
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("[REFUNDS] worker started", zap.Duration("interval", w.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("[REFUNDS] worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.log.Error("[REFUNDS] batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch handles up to BatchSize tasks and returns how many refunds were applied.
func (w *RefundWorker) ProcessBatch(ctx context.Context) (int, error) {
	applied := 0
	for i := 0; i < w.cfg.BatchSize; i++ {
		task, err := w.queue.Pop(ctx)
		if err != nil {
			return applied, err
		}
		if task == nil {
			break
		}

		done, err := w.queue.IsDone(ctx, task.ID)
		if err != nil {
			return applied, w.requeue(ctx, *task, err)
		}
		if done {
			w.log.Debug("[REFUNDS] skipping applied task", zap.String("task_id", task.ID))
			continue
		}

		if w.process(ctx, *task) {
			applied++
		}
	}

	if depth, err := w.queue.Len(ctx); err == nil {
		w.metrics.RefundQueue.Set(float64(depth))
	}
	return applied, nil
}

func (w *RefundWorker) process(ctx context.Context, task models.RefundTask) bool {
	balance, err := w.refunder.ApplyRefund(ctx, task.Identity)
	if err == nil {
		if merr := w.queue.MarkDone(ctx, task.ID); merr != nil {
			w.log.Warn("[REFUNDS] failed to mark task done", zap.String("task_id", task.ID), zap.Error(merr))
		}
		w.metrics.Refunds.WithLabelValues("recovered").Inc()
		w.audit.LogRefund(task.RequestID, task.Identity, balance)
		w.log.Info("[REFUNDS] refund applied",
			zap.String("task_id", task.ID),
			zap.String("identity", task.Identity),
			zap.Int("attempts", task.Attempts+1))
		return true
	}

	task.Attempts++
	task.LastError = err.Error()
	if task.Attempts >= w.cfg.MaxAttempts {
		w.metrics.Refunds.WithLabelValues("dropped").Inc()
		w.audit.LogRefundDropped(task.RequestID, task.Identity, task.Attempts, task.LastError)
		w.log.Error("[REFUNDS] giving up on refund",
			zap.String("task_id", task.ID),
			zap.String("identity", task.Identity),
			zap.Int("attempts", task.Attempts),
			zap.Error(err))
		return false
	}

	if qerr := w.queue.Enqueue(ctx, task); qerr != nil {
		w.log.Error("[REFUNDS] failed to requeue refund", zap.String("task_id", task.ID), zap.Error(qerr))
	}
	return false
}

func (w *RefundWorker) requeue(ctx context.Context, task models.RefundTask, cause error) error {
	if err := w.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("%v; requeue failed: %w", cause, err)
	}
	return cause
}
