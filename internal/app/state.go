// Package app runs the scheduled capture, estimate and publish cycle.
package app

import (
	"errors"
	"fmt"

	"gasmeter/internal/estimate"
	"gasmeter/internal/stabilize"
)

// State holds everything carried from one cycle to the next. It is owned by
// the cycle loop; nothing else reads or writes it while the loop runs.
type State struct {
	History      *estimate.CircleHistory
	Range        *stabilize.ExpectedRange // nil until a cycle establishes one
	LastAccepted *float64                 // nil until a reading is published
	RangePath    string

	listeners map[EventType][]EventListener
}

// EventType identifies cycle events.
type EventType int

const (
	EventCycleSkipped EventType = iota
	EventRangeChanged
	EventReadingRejected
	EventReadingPublished
	EventPublishFailed
)

func (e EventType) String() string {
	switch e {
	case EventCycleSkipped:
		return "skipped"
	case EventRangeChanged:
		return "range changed"
	case EventReadingRejected:
		return "rejected"
	case EventReadingPublished:
		return "published"
	case EventPublishFailed:
		return "publish failed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// EventListener is a callback for cycle events.
type EventListener func(data interface{})

// NewState creates an empty state whose range is persisted at rangePath.
func NewState(rangePath string, historyCapacity int) *State {
	return &State{
		History:   estimate.NewCircleHistory(historyCapacity),
		RangePath: rangePath,
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers a listener for an event type.
func (s *State) On(event EventType, listener EventListener) {
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit calls every listener registered for event.
func (s *State) Emit(event EventType, data interface{}) {
	for _, listener := range s.listeners[event] {
		listener(data)
	}
}

// LoadRange restores the persisted range. A missing file is a cold start.
// A corrupt file leaves Range nil and returns the error so it can be
// reported; the loop can still run.
func (s *State) LoadRange() error {
	s.Range = nil
	r, err := stabilize.LoadRange(s.RangePath)
	if err != nil {
		return err
	}
	s.Range = r
	return nil
}

// SetRange adopts r and persists it. The in-memory range is updated even
// when the write fails.
func (s *State) SetRange(r stabilize.ExpectedRange) error {
	if s.Range != nil && *s.Range == r {
		return nil
	}
	s.Range = &r
	s.Emit(EventRangeChanged, r)
	if s.RangePath == "" {
		return nil
	}
	if err := stabilize.SaveRange(s.RangePath, r); err != nil {
		return fmt.Errorf("persist range %v: %w", r, err)
	}
	return nil
}

// Accept records v as the last published reading.
func (s *State) Accept(v float64) {
	s.LastAccepted = &v
}

// IsCorruptRange reports whether err came from an unusable range file.
func IsCorruptRange(err error) bool {
	return errors.Is(err, stabilize.ErrRangeCorrupt)
}
