// Package events publishes job lifecycle transitions to NATS JetStream for
// external consumers (dashboards, CRM sync). Disabled installs get the Noop
// publisher; the queue never blocks on event delivery either way.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/leadforge/internal/config"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

const publishTimeout = 5 * time.Second

// Event is the wire shape of one lifecycle transition.
type Event struct {
	Kind      string         `json:"kind"` // queued | finished
	Job       queue.Snapshot `json:"job"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher emits lifecycle events on `<subject>.<work_type>`.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects to NATS. Callers should fall back to Noop when the
// events config is disabled.
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("events are disabled")
	}
	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	slog.Info("Job event publisher initialized",
		"url", cfg.NATSURL, "subject", cfg.Subject)
	return &Publisher{conn: conn, js: js, subject: cfg.Subject}, nil
}

// EmitJobQueued implements queue.LifecycleEmitter.
func (p *Publisher) EmitJobQueued(ctx context.Context, snap queue.Snapshot) error {
	return p.publish(ctx, "queued", snap)
}

// EmitJobFinished implements queue.LifecycleEmitter.
func (p *Publisher) EmitJobFinished(ctx context.Context, snap queue.Snapshot) error {
	return p.publish(ctx, "finished", snap)
}

func (p *Publisher) publish(ctx context.Context, kind string, snap queue.Snapshot) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(Event{Kind: kind, Job: snap, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.subject, snap.WorkType)
	if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// Noop is the emitter used when events are disabled.
type Noop struct{}

func (Noop) EmitJobQueued(context.Context, queue.Snapshot) error   { return nil }
func (Noop) EmitJobFinished(context.Context, queue.Snapshot) error { return nil }
