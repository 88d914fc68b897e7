package services

import (
	"context"
	"time"

	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/audit"
	"github.com/wondr/rembg/internal/config"
	"github.com/wondr/rembg/internal/events"
	"github.com/wondr/rembg/internal/metrics"
	"github.com/wondr/rembg/internal/models"
	"go.uber.org/zap"
)

// RefundEnqueuer accepts refunds that could not be applied inline
type RefundEnqueuer interface {
	Enqueue(ctx context.Context, task models.RefundTask) error
}

// CreditCoordinator charges one credit before processing and gives it back
// when a later step fails. It holds no balance state between calls.
type CreditCoordinator struct {
	ledger      LedgerClient
	consistency string
	maxRetries  int
	callTimeout time.Duration

	queue     RefundEnqueuer
	publisher events.Publisher
	audit     *audit.Logger
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewCreditCoordinator(ledger LedgerClient, cfg config.LedgerConfig, log *zap.Logger, auditLogger *audit.Logger, m *metrics.Metrics) *CreditCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	if m == nil {
		m = metrics.NewNop()
	}
	consistency := cfg.Consistency
	if consistency == "" {
		consistency = config.ConsistencyCAS
	}
	return &CreditCoordinator{
		ledger:      ledger,
		consistency: consistency,
		maxRetries:  cfg.MaxRetries,
		callTimeout: cfg.CallTimeout,
		publisher:   events.Noop{},
		audit:       auditLogger,
		metrics:     m,
		log:         log.Named("credits"),
		now:         time.Now,
	}
}

// SetRefundQueue enables durable retry of failed refunds
func (c *CreditCoordinator) SetRefundQueue(q RefundEnqueuer) {
	c.queue = q
}

func (c *CreditCoordinator) SetPublisher(p events.Publisher) {
	if p != nil {
		c.publisher = p
	}
}

// Charge deducts one credit and returns the remaining balance. A zero balance
// fails with INSUFFICIENT_CREDITS and no write is made.
func (c *CreditCoordinator) Charge(ctx context.Context, requestID, identity string) (int64, error) {
	remaining, err := c.adjust(ctx, identity, -1, func(balance int64) error {
		if balance <= 0 {
			return apperrors.New(apperrors.InsufficientCredits, "Insufficient credits", nil)
		}
		return nil
	})
	if err != nil {
		c.metrics.Charges.WithLabelValues(chargeResult(err)).Inc()
		c.log.Warn("[CREDITS] charge failed",
			zap.String("request_id", requestID),
			zap.String("identity", identity),
			zap.Error(err))
		return 0, err
	}

	c.metrics.Charges.WithLabelValues("success").Inc()
	c.audit.LogCharge(requestID, identity, remaining)
	c.publish(ctx, models.CreditCharged, requestID, identity, -1, remaining)
	c.log.Info("[CREDITS] charge succeeded",
		zap.String("request_id", requestID),
		zap.String("identity", identity),
		zap.Int64("remaining", remaining))
	return remaining, nil
}

// Refund gives back the credit taken by Charge. It never returns an error:
// failures are logged, audited and, when a queue is set, handed to the refund
// worker. The caller's cancellation does not abort the refund.
func (c *CreditCoordinator) Refund(ctx context.Context, requestID, identity string) {
	ctx = context.WithoutCancel(ctx)

	balance, err := c.ApplyRefund(ctx, identity)
	if err == nil {
		c.metrics.Refunds.WithLabelValues("success").Inc()
		c.audit.LogRefund(requestID, identity, balance)
		c.publish(ctx, models.CreditRefunded, requestID, identity, 1, balance)
		c.log.Info("[CREDITS] refund succeeded",
			zap.String("request_id", requestID),
			zap.String("identity", identity),
			zap.Int64("balance", balance))
		return
	}

	c.metrics.Refunds.WithLabelValues("failed").Inc()
	c.audit.LogRefundFailed(requestID, identity, err)
	c.publish(ctx, models.CreditRefundFailed, requestID, identity, 1, 0)
	c.log.Error("[CREDITS] refund failed",
		zap.String("request_id", requestID),
		zap.String("identity", identity),
		zap.Error(err))

	if c.queue == nil {
		return
	}
	task := models.RefundTask{
		ID:        newTaskID(),
		RequestID: requestID,
		Identity:  identity,
		Attempts:  1,
		LastError: err.Error(),
		CreatedAt: c.now(),
	}
	if qerr := c.queue.Enqueue(ctx, task); qerr != nil {
		c.log.Error("[CREDITS] failed to queue refund",
			zap.String("request_id", requestID),
			zap.String("identity", identity),
			zap.Error(qerr))
		return
	}
	c.metrics.Refunds.WithLabelValues("queued").Inc()
	c.audit.LogRefundQueued(requestID, identity, task.ID)
}

// ApplyRefund adds one credit and returns the new balance. Used inline by
// Refund and by the refund worker.
func (c *CreditCoordinator) ApplyRefund(ctx context.Context, identity string) (int64, error) {
	return c.adjust(ctx, identity, 1, nil)
}

// Balance reads the current balance without modifying it
func (c *CreditCoordinator) Balance(ctx context.Context, identity string) (int64, error) {
	balance, err := c.getBalance(ctx, identity)
	if err != nil {
		return 0, apperrors.New(apperrors.CreditLookupFailed, "Failed to fetch credits", err)
	}
	return balance, nil
}

// adjust applies delta to the balance read in the same call. In cas mode the
// write is guarded by the value read and retried on conflict; in overwrite
// mode it is a blind write and concurrent requests can lose updates.
func (c *CreditCoordinator) adjust(ctx context.Context, identity string, delta int64, check func(balance int64) error) (int64, error) {
	for attempt := 0; ; attempt++ {
		balance, err := c.getBalance(ctx, identity)
		if err != nil {
			return 0, apperrors.New(apperrors.CreditLookupFailed, "Failed to fetch credits", err)
		}
		if check != nil {
			if err := check(balance); err != nil {
				return 0, err
			}
		}
		next := balance + delta

		if c.consistency == config.ConsistencyOverwrite {
			if err := c.setBalance(ctx, identity, next); err != nil {
				return 0, apperrors.New(apperrors.CreditUpdateFailed, "Failed to update credits", err)
			}
			return next, nil
		}

		swapped, err := c.compareAndSet(ctx, identity, balance, next)
		if err != nil {
			return 0, apperrors.New(apperrors.CreditUpdateFailed, "Failed to update credits", err)
		}
		if swapped {
			return next, nil
		}
		if attempt >= c.maxRetries {
			conflict := apperrors.Newf(apperrors.LedgerConflict, "balance changed concurrently %d times", attempt+1)
			return 0, apperrors.New(apperrors.CreditUpdateFailed, "Failed to update credits", conflict)
		}
		c.metrics.LedgerRetries.Inc()
		c.log.Debug("[CREDITS] balance changed during update, retrying",
			zap.String("identity", identity),
			zap.Int("attempt", attempt+1))
	}
}

func (c *CreditCoordinator) getBalance(ctx context.Context, identity string) (int64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.ledger.GetBalance(ctx, identity)
}

func (c *CreditCoordinator) setBalance(ctx context.Context, identity string, value int64) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.ledger.SetBalance(ctx, identity, value)
}

func (c *CreditCoordinator) compareAndSet(ctx context.Context, identity string, expected, next int64) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.ledger.CompareAndSetBalance(ctx, identity, expected, next)
}

func (c *CreditCoordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *CreditCoordinator) publish(ctx context.Context, eventType, requestID, identity string, delta, balance int64) {
	event := models.CreditEvent{
		Type:      eventType,
		RequestID: requestID,
		Identity:  identity,
		Delta:     delta,
		Balance:   balance,
		CreatedAt: c.now(),
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.log.Warn("[CREDITS] failed to publish credit event",
			zap.String("type", eventType),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func chargeResult(err error) string {
	switch {
	case apperrors.HasCode(err, apperrors.InsufficientCredits):
		return "insufficient"
	case apperrors.HasCode(err, apperrors.CreditLookupFailed):
		return "lookup_failed"
	default:
		return "update_failed"
	}
}
