// Package publish delivers accepted readings to their consumers.
package publish

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Message is one published meter reading.
type Message struct {
	Reading   float64
	Timestamp time.Time
}

type wireMessage struct {
	Reading   json.Number `json:"reading"`
	Timestamp string      `json:"timestamp"`
}

// MarshalJSON writes the reading with one decimal place and an RFC 3339
// timestamp.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Reading:   json.Number(strconv.FormatFloat(m.Reading, 'f', 1, 64)),
		Timestamp: m.Timestamp.Format(time.RFC3339),
	})
}

// UnmarshalJSON reads a message written by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r, err := w.Reading.Float64()
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return err
	}
	m.Reading, m.Timestamp = r, ts
	return nil
}

// Publisher sends a reading. Delivery is best effort: a failed publish is
// reported and not retried.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close()
}
