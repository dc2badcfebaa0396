package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/services"
)

const durablePrefix = "media-service"

// Client owns the NATS connection and its JetStream context. It publishes media events
// and routes inbound subjects to handlers.
type Client struct {
	Conn *nats.Conn
	js   nats.JetStreamContext
	log  *logger.Logger
	subs []*nats.Subscription
}

func NewClient(url string, log *logger.Logger) (*Client, error) {
	log = log.With("component", "nats")
	conn, err := nats.Connect(url,
		nats.Name("petmarket-media-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	c := &Client{Conn: conn, js: js, log: log}
	if err := c.ensureStream(); err != nil {
		log.Warn("Failed to ensure stream", "stream", services.MediaEventsStream, "error", err)
	}
	log.Info("NATS connected and JetStream initialized", "url", conn.ConnectedUrl())
	return c, nil
}

func (c *Client) ensureStream() error {
	_, err := c.js.StreamInfo(services.MediaEventsStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     services.MediaEventsStream,
		Subjects: []string{"media.*", "entities.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Publish stores the event in JetStream. Each message gets an id for deduplication.
func (c *Client) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if _, err := c.js.Publish(subject, data, nats.MsgId(uuid.NewString()), nats.Context(ctx)); err != nil {
		c.log.Warn("Publish failed", "subject", subject, "error", err)
		return err
	}
	return nil
}

// SubscribeAll creates one durable manual-ack consumer per route.
func (c *Client) SubscribeAll(routes map[string]nats.MsgHandler) error {
	for subject, handler := range routes {
		durable := durableName(subject)
		sub, err := c.js.Subscribe(subject, handler, nats.Durable(durable), nats.ManualAck())
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
		c.log.Info("Subscribed", "subject", subject, "durable", durable)
	}
	return nil
}

// Close drains subscriptions and the connection.
func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.log.Warn("NATS drain failed", "error", err)
		c.Conn.Close()
	}
}

func durableName(subject string) string {
	out := []rune(durablePrefix + "-" + subject)
	for i, r := range out {
		if r == '.' || r == '*' || r == '>' {
			out[i] = '-'
		}
	}
	return string(out)
}

var _ services.EventPublisher = (*Client)(nil)
