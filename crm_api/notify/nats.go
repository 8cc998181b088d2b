package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("crm_api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect failed: %w", err)
	}

	return &NatsPublisher{conn: nc}, nil
}

func (p *NatsPublisher) Publish(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("error encoding notification: %w", err)
	}
	if err := p.conn.Publish(n.Subject, data); err != nil {
		return fmt.Errorf("error publishing to %v: %w", n.Subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Error("error draining nats connection", "error", err)
		p.conn.Close()
	}
}
