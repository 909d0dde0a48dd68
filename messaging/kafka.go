package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
)

const kafkaPublishTimeout = 10 * time.Second

type kafkaTransport struct {
	brokers []string
	groupID string
	writer  *kafka.Writer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	readers map[string]*kafka.Reader
}

func dialKafka(cfg *config.MessagingConfig) (*kafkaTransport, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	var (
		conn *kafka.Conn
		err  error
	)
	for _, broker := range cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if err == nil {
			log.Printf("messaging: kafka connected to %s", broker)
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("kafka connect: %w", err)
	}
	createTopics(conn, cfg.BookingsTopic, cfg.RequesterTopic)
	conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaTransport{
		brokers: cfg.Kafka.Brokers,
		groupID: cfg.Kafka.GroupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		ctx:     ctx,
		cancel:  cancel,
		readers: make(map[string]*kafka.Reader),
	}, nil
}

// createTopics asks the controller for the fixed topics. Vendor topics
// are left to broker auto-creation. Failures are only logged.
func createTopics(conn *kafka.Conn, topics ...string) {
	controller, err := conn.Controller()
	if err != nil {
		log.Printf("messaging: cannot find kafka controller: %v", err)
		return
	}
	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Printf("messaging: cannot connect to kafka controller: %v", err)
		return
	}
	defer cc.Close()

	var configs []kafka.TopicConfig
	for _, t := range topics {
		if t != "" {
			configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
		}
	}
	if len(configs) == 0 {
		return
	}
	if err := cc.CreateTopics(configs...); err != nil {
		log.Printf("messaging: topic create: %v", err)
	}
}

func (k *kafkaTransport) publish(topic, key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(k.ctx, kafkaPublishTimeout)
	defer cancel()
	msg := kafka.Message{Topic: topic, Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *kafkaTransport) subscribe(topic string, handler MessageHandler) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.readers[topic]; ok {
		old.Close()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: k.groupID,
	})
	k.readers[topic] = reader

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for {
			msg, err := reader.ReadMessage(k.ctx)
			if err != nil {
				if k.ctx.Err() == nil {
					log.Printf("messaging: kafka reader %s stopped: %v", topic, err)
				}
				return
			}
			handler(msg.Topic, msg.Value)
		}
	}()
	return nil
}

func (k *kafkaTransport) connected() bool {
	return k.ctx.Err() == nil
}

func (k *kafkaTransport) close() {
	k.cancel()
	k.mu.Lock()
	for _, r := range k.readers {
		r.Close()
	}
	k.readers = nil
	k.mu.Unlock()
	k.wg.Wait()
	k.writer.Close()
}
