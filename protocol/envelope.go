package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Address identifies a message source or destination. Station is the
// core's station id, a vendor id, or a requester id depending on Role.
type Address struct {
	Role    string `json:"role"`
	Station string `json:"station"`
}

// Header carries everything needed to route or drop a message without
// touching its payload.
type Header struct {
	Version   int       `json:"v"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Src       Address   `json:"src"`
	Dst       Address   `json:"dst"`
	ExpiresAt time.Time `json:"exp"`
}

// ExpiredAt reports whether the message is stale at now. A zero expiry
// never expires.
func (h *Header) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt)
}

type Envelope struct {
	Header
	Timestamp time.Time       `json:"ts"`
	CorID     string          `json:"cor,omitempty"`
	Payload   json.RawMessage `json:"p"`
}

// Option adjusts an envelope under construction.
type Option func(*Envelope)

// InReplyTo correlates the envelope with the message id it answers.
func InReplyTo(id string) Option {
	return func(e *Envelope) { e.CorID = id }
}

// Expires replaces the per-type default TTL with a fixed deadline.
// Offer notifications die with their offer.
func Expires(at time.Time) Option {
	return func(e *Envelope) { e.ExpiresAt = at.UTC() }
}

// NewEnvelope wraps payload for the bus. Without Expires the deadline is
// DefaultTTLFor(msgType) from now.
func NewEnvelope(msgType string, src, dst Address, payload any, opts ...Option) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	env := &Envelope{
		Header: Header{
			Version:   Version,
			Type:      msgType,
			ID:        uuid.NewString(),
			Src:       src,
			Dst:       dst,
			ExpiresAt: now.Add(DefaultTTLFor(msgType)),
		},
		Timestamp: now,
		Payload:   p,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
