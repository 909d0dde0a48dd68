package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

const (
	drainBatch         = 50
	maxPublishAttempts = 20
)

// Publisher is the part of Client the drainer needs. key selects the
// partition on Kafka and is ignored by MQTT.
type Publisher interface {
	PublishKeyed(topic, key string, payload []byte) error
}

// OutboxDrainer periodically publishes queued protocol messages. Messages
// whose envelope expired before delivery are dropped, not sent late.
type OutboxDrainer struct {
	db       *store.DB
	client   Publisher
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	// Now is the drainer's clock.
	Now func() time.Time
}

func NewOutboxDrainer(db *store.DB, client Publisher, interval time.Duration) *OutboxDrainer {
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
		Now:      time.Now,
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

func (d *OutboxDrainer) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// drain publishes one batch and returns how many messages went out. A
// failed publish stops the batch so later messages to the same recipient
// never overtake it.
func (d *OutboxDrainer) drain() int {
	now := d.Now()
	expired, exhausted, err := d.db.DropStaleOutbox(now, maxPublishAttempts)
	if err != nil {
		log.Printf("outbox: drop stale: %v", err)
	}
	if expired > 0 {
		log.Printf("outbox: dropped %d message(s) that expired undelivered", expired)
	}
	if exhausted > 0 {
		log.Printf("outbox: gave up on %d message(s) after %d attempts", exhausted, maxPublishAttempts)
	}

	msgs, err := d.db.ListPendingOutbox(now, drainBatch)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.client.PublishKeyed(msg.Topic, msg.Key, msg.Payload); err != nil {
			log.Printf("outbox: publish %s #%d to %s failed: %v", msg.MsgType, msg.ID, msg.Topic, err)
			d.db.RecordOutboxFailure(msg.ID, err.Error())
			break
		}
		if err := d.db.MarkOutboxSent(msg.ID, now); err != nil {
			log.Printf("outbox: mark %d sent: %v", msg.ID, err)
			continue
		}
		sent++
	}
	return sent
}

// EnqueueEnvelope encodes env and queues it for recipient. The queued
// message expires with the envelope.
func EnqueueEnvelope(db *store.DB, topic, recipient string, env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	m := &store.OutboxMessage{
		Topic:   topic,
		Key:     recipient,
		MsgType: env.Type,
		Payload: data,
	}
	if !env.ExpiresAt.IsZero() {
		exp := env.ExpiresAt
		m.ExpiresAt = &exp
	}
	return db.EnqueueOutbox(m)
}
