package audit

import (
	"time"

	"go.uber.org/zap"
)

// Event types
const (
	EventCharge        = "CHARGE"
	EventRefund        = "REFUND"
	EventRefundFailed  = "REFUND_FAILED"
	EventRefundQueued  = "REFUND_QUEUED"
	EventRefundDropped = "REFUND_DROPPED"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	RequestID string    `json:"request_id"`
	Identity  string    `json:"identity"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes one AUDIT record per credit movement
type Logger struct {
	log *zap.Logger
	now func() time.Time
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit"), now: time.Now}
}

func (a *Logger) LogCharge(requestID, identity string, balance int64) {
	a.write(AuditEvent{
		EventType: EventCharge,
		RequestID: requestID,
		Identity:  identity,
		Amount:    -1,
		Balance:   balance,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogRefund(requestID, identity string, balance int64) {
	a.write(AuditEvent{
		EventType: EventRefund,
		RequestID: requestID,
		Identity:  identity,
		Amount:    1,
		Balance:   balance,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogRefundFailed(requestID, identity string, err error) {
	a.write(AuditEvent{
		EventType: EventRefundFailed,
		RequestID: requestID,
		Identity:  identity,
		Amount:    1,
		Status:    "FAILED",
		Details:   err.Error(),
	})
}

func (a *Logger) LogRefundQueued(requestID, identity, taskID string) {
	a.write(AuditEvent{
		EventType: EventRefundQueued,
		RequestID: requestID,
		Identity:  identity,
		Amount:    1,
		Status:    "PENDING",
		Details:   "task " + taskID,
	})
}

func (a *Logger) LogRefundDropped(requestID, identity string, attempts int, lastErr string) {
	a.write(AuditEvent{
		EventType: EventRefundDropped,
		RequestID: requestID,
		Identity:  identity,
		Amount:    1,
		Status:    "DROPPED",
		Details:   lastErr,
	}, zap.Int("attempts", attempts))
}

func (a *Logger) write(event AuditEvent, extra ...zap.Field) {
	event.Timestamp = a.now()
	fields := append([]zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("request_id", event.RequestID),
		zap.String("identity", event.Identity),
		zap.Int64("amount", event.Amount),
		zap.Int64("balance", event.Balance),
		zap.String("status", event.Status),
		zap.Time("event_time", event.Timestamp),
	}, extra...)
	if event.Details != "" {
		fields = append(fields, zap.String("details", event.Details))
	}
	a.log.Info("AUDIT", fields...)
}
