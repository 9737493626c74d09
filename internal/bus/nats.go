package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const clientName = "skytraced"

// Publisher sends JSON events to a single NATS subject.
// A Publisher without a connection drops every event.
type Publisher struct {
	Conn    *nats.Conn
	Subject string
}

// NewPublisher connects to url. An empty url returns a Publisher that publishes nothing.
func NewPublisher(url, subject string) (*Publisher, error) {
	if url == "" {
		return &Publisher{Subject: subject}, nil
	}
	conn, err := nats.Connect(url, nats.Name(clientName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &Publisher{Conn: conn, Subject: subject}, nil
}

func (p *Publisher) Close() {
	if p != nil && p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

// Publish marshals payload and publishes it on the publisher's subject.
func (p *Publisher) Publish(ctx context.Context, payload any) error {
	if p == nil || p.Conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.Conn.Publish(p.Subject, data)
}
