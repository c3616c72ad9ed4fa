package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoS used for readings: at least once.
const QoS = 1

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Topic          string
	ConnectTimeout time.Duration
}

// MQTT publishes readings to a broker topic.
type MQTT struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// Connect dials the broker and blocks until the connection is up, the
// timeout passes or ctx is cancelled. The connection is held until Close.
func Connect(ctx context.Context, opts MQTTOptions) (*MQTT, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("[Publish] connected to %s", opts.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("[Publish] connection to %s lost: %v", opts.Broker, err)
		})

	m := newMQTT(mqtt.NewClient(co), opts.Topic, opts.ConnectTimeout)
	if err := m.wait(ctx, m.client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	return m, nil
}

func newMQTT(client mqtt.Client, topic string, timeout time.Duration) *MQTT {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MQTT{client: client, topic: topic, timeout: timeout}
}

// wait blocks on a token for at most the configured timeout.
func (m *MQTT) wait(ctx context.Context, tok mqtt.Token) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends msg as JSON to the configured topic and waits for the
// broker's acknowledgement.
func (m *MQTT) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := m.wait(ctx, m.client.Publish(m.topic, QoS, false, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	log.Printf("[Publish] %s %s", m.topic, payload)
	return nil
}

// Close disconnects, allowing a short grace period for in-flight messages.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

// Log is a Publisher that only writes readings to the log, for dry runs.
type Log struct{}

// Publish logs msg.
func (Log) Publish(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	log.Printf("[Publish] dry run: %s", payload)
	return nil
}

// Close does nothing.
func (Log) Close() {}
