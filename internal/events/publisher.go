// Package events publishes credit movements for downstream consumers
// (billing dashboards, fraud checks). Publication is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/wondr/rembg/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event models.CreditEvent) error
	Close()
}

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher sends each event to {prefix}.{type}, e.g. credits.charged
type NATSPublisher struct {
	conn   Conn
	prefix string
}

func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "credits"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Connect dials url. An empty url yields a no-op publisher.
func Connect(url, prefix string) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	nc, err := nats.Connect(url, nats.Name("rembg"))
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %w", err)
	}
	return NewNATSPublisher(nc, prefix), nil
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, event models.CreditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal credit event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}

// Noop drops every event
type Noop struct{}

func (Noop) Publish(context.Context, models.CreditEvent) error { return nil }
func (Noop) Close()                                            {}
