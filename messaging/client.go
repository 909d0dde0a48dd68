package messaging

import (
	"fmt"
	"log"
	"sync"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
)

type MessageHandler func(topic string, payload []byte)

// transport is one broker connection. Topics are always given in dotted
// form; a transport maps them onto its own naming.
type transport interface {
	publish(topic, key string, payload []byte) error
	subscribe(topic string, handler MessageHandler) error
	connected() bool
	close()
}

// Client publishes to and consumes from Kafka or an MQTT broker, chosen by
// cfg.Backend. Subscriptions survive Reconfigure.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	conn     transport
	handlers map[string]MessageHandler
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		conn transport
		err  error
	)
	switch c.cfg.Backend {
	case "kafka":
		conn, err = dialKafka(c.cfg)
	case "mqtt":
		conn, err = dialMQTT(c.cfg, c.snapshotHandlers)
	default:
		err = fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Publish sends an unkeyed message.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.PublishKeyed(topic, "", payload)
}

// PublishKeyed sends payload with a partition key. Messages sharing a key
// are delivered in order on Kafka.
func (c *Client) PublishKeyed(topic, key string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return fmt.Errorf("%s not connected", c.cfg.Backend)
	}
	return c.conn.publish(topic, key, payload)
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe registers handler for topic. The registration is kept even
// when the broker is down so a later Reconfigure restores it.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	if c.conn == nil {
		return fmt.Errorf("%s not connected", c.cfg.Backend)
	}
	return c.conn.subscribe(topic, handler)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.connected()
}

// Reconfigure closes the existing connection and reconnects with new config.
// All previously registered subscriptions are restored.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.Close()
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}

	for topic, handler := range c.snapshotHandlers() {
		if err := c.Subscribe(topic, handler); err != nil {
			log.Printf("messaging: re-subscribe %s after reconfigure: %v", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
}

func (c *Client) snapshotHandlers() map[string]MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		out[k] = v
	}
	return out
}
