// Package events publishes link change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Type names a link change.
type Type string

const (
	LinkCreated Type = "link.created"
	LinkUpdated Type = "link.updated"
)

// Event describes the state of a link right after a write.
type Event struct {
	Type         Type            `json:"type"`
	LinkID       string          `json:"linkId"`
	OriginalURL  string          `json:"originalUrl"`
	DecoratedURL string          `json:"newUrl"`
	Parameters   json.RawMessage `json:"parameters"`
	Version      int64           `json:"version"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

// Publisher delivers events. Delivery is best-effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

/***************
 * No-op
 ***************/

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                        { return nil }

/***************
 * NATS
 ***************/

// msgPublisher is the part of *nats.Conn used for publishing.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes events on core NATS subjects of the form
// "<subject>.<type>", e.g. "links.events.link.created".
type NATSPublisher struct {
	conn    msgPublisher
	subject string
	logger  *slog.Logger
}

// Connect dials url and returns a publisher on subject. The connection
// reconnects forever in the background.
func Connect(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(
		url,
		nats.Name("urlappender"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSPublisher(conn, subject, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn msgPublisher, subject string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.subject + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}

	msg := nats.NewMsg(p.Subject(e.Type))
	msg.Data = data
	msg.Header.Set("Link-Id", e.LinkID)
	msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s/%d", e.LinkID, e.Version))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// Close flushes buffered messages and drains the connection.
func (p *NATSPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		p.logger.Warn("nats flush failed", "error", err)
	}
	return p.conn.Drain()
}
