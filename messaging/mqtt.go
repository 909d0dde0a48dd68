package messaging

import (
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
)

const mqttQoS = 1

type mqttTransport struct {
	client mqtt.Client
}

// dialMQTT connects to the broker. handlers is consulted on every
// (re)connect because clean sessions drop subscriptions broker-side.
func dialMQTT(cfg *config.MessagingConfig, handlers func() map[string]MessageHandler) (*mqttTransport, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
	t := &mqttTransport{}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			for topic, h := range handlers() {
				if err := subscribeMQTT(c, topic, h); err != nil {
					log.Printf("messaging: mqtt resubscribe %s: %v", topic, err)
				}
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection lost: %v", err)
		})

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect: timeout to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	log.Printf("messaging: mqtt connected to %s", broker)
	return t, nil
}

// mqttTopic maps a dotted topic onto the MQTT level separator, so
// "truckdispatch.vendor.7" becomes "truckdispatch/vendor/7".
func mqttTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

func subscribeMQTT(c mqtt.Client, topic string, handler MessageHandler) error {
	token := c.Subscribe(mqttTopic(topic), mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(topic, msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (t *mqttTransport) publish(topic, _ string, payload []byte) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := t.client.Publish(mqttTopic(topic), mqttQoS, false, payload)
	token.Wait()
	return token.Error()
}

func (t *mqttTransport) subscribe(topic string, handler MessageHandler) error {
	return subscribeMQTT(t.client, topic, handler)
}

func (t *mqttTransport) connected() bool {
	return t.client.IsConnected()
}

func (t *mqttTransport) close() {
	t.client.Disconnect(1000)
}
