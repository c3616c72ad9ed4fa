package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

// fakeClient records publishes. Unused methods panic via the nil interface.
type fakeClient struct {
	mqtt.Client
	token        *doneToken
	topic        string
	qos          byte
	payload      []byte
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.payload = topic, qos, payload.([]byte)
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestMessageJSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	data, err := json.Marshal(Message{Reading: 1234.56, Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reading": 1234.6, "timestamp": "2024-03-01T08:30:00Z"}`, string(data))
	assert.Contains(t, string(data), `"reading":1234.6`)

	whole, err := json.Marshal(Message{Reading: 1000, Timestamp: ts})
	require.NoError(t, err)
	assert.Contains(t, string(whole), `"reading":1000.0`)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1234.6, back.Reading)
	assert.True(t, ts.Equal(back.Timestamp))
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{token: newToken(nil, true)}
	m := newMQTT(client, "gasmeter/reading", time.Second)

	err := m.Publish(context.Background(), Message{Reading: 999.8, Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.Equal(t, "gasmeter/reading", client.topic)
	assert.Equal(t, byte(QoS), client.qos)
	assert.Contains(t, string(client.payload), `"reading":999.8`)

	m.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTPublishFailure(t *testing.T) {
	client := &fakeClient{token: newToken(errors.New("not connected"), true)}
	m := newMQTT(client, "t", time.Second)
	err := m.Publish(context.Background(), Message{})
	assert.ErrorContains(t, err, "not connected")
}

func TestMQTTPublishTimeout(t *testing.T) {
	client := &fakeClient{token: newToken(nil, false)}
	m := newMQTT(client, "t", 10*time.Millisecond)
	err := m.Publish(context.Background(), Message{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectUnreachableBroker(t *testing.T) {
	_, err := Connect(context.Background(), MQTTOptions{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "gasmeter-test",
		Topic:          "t",
		ConnectTimeout: 2 * time.Second,
	})
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = Log{}
	assert.NoError(t, p.Publish(context.Background(), Message{Reading: 1}))
	p.Close()
}
