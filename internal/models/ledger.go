package models

import (
	"time"
)

// Identity is the ledger key extracted from a verified credential.
// Only Key is used for ledger lookups.
type Identity struct {
	Key     string `json:"key"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// CreditAccount mirrors one row of the credit_accounts table
type CreditAccount struct {
	Identity  string    `json:"identity" db:"identity"`
	Credits   int64     `json:"credits" db:"credits"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RefundTask is a refund that could not be applied inline and waits for the worker
type RefundTask struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Identity  string    `json:"identity"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Credit event types
const (
	CreditCharged      = "charged"
	CreditRefunded     = "refunded"
	CreditRefundFailed = "refund_failed"
)

// CreditEvent is published after every credit movement
type CreditEvent struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Identity  string    `json:"identity"`
	Delta     int64     `json:"delta"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}
