package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Negotiation event subjects.
const (
	SubjectTurnRecorded  = "negotiation.turn.recorded"
	SubjectOfferAccepted = "negotiation.offer.accepted"
	SubjectPolicyBreach  = "negotiation.policy.breach"
	SubjectSessionEnd    = "negotiation.session.end"
)

// TurnRecorded is emitted after a negotiated turn is committed.
type TurnRecorded struct {
	SessionID      string    `json:"session_id"`
	Turn           int       `json:"turn"`
	Ceiling        int       `json:"ceiling"`
	CandidateBase  int       `json:"candidate_base,omitempty"`
	AgentBase      int       `json:"agent_base,omitempty"`
	PreferenceTags []string  `json:"preferences,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// OfferAccepted is emitted when the candidate accepts the pending agent offer.
type OfferAccepted struct {
	SessionID string          `json:"session_id"`
	Turn      int             `json:"turn"`
	OfferID   int             `json:"offer_id"`
	Details   json.RawMessage `json:"details"`
	Timestamp time.Time       `json:"timestamp"`
}

// PolicyBreach is emitted when a generated offer exceeds the turn's ceiling.
type PolicyBreach struct {
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	Ceiling   int       `json:"ceiling"`
	Offered   int       `json:"offered"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEnd asks every replica to drop a session.
type SessionEnd struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("negotiator"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
