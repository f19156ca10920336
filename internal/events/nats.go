package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"yatube/internal/middleware"
	"yatube/internal/observability"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NatsPublisher sends JSON-encoded events with the trace context in message headers.
type NatsPublisher struct {
	conn  msgPublisher
	close func()
}

// Connect dials NATS and returns a publisher.
func Connect(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(observability.ServiceName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				middleware.Logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			middleware.Logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsPublisher{conn: nc, close: nc.Close}, nil
}

// NewNatsPublisher wraps an existing connection.
func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{conn: nc, close: nc.Close}
}

func (p *NatsPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: ev.Subject(),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		observability.EventsPublished.WithLabelValues(msg.Subject, "failed").Inc()
		return err
	}
	observability.EventsPublished.WithLabelValues(msg.Subject, "sent").Inc()
	middleware.Logger.DebugContext(ctx, "event published", slog.String("subject", msg.Subject))
	return nil
}

func (p *NatsPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
