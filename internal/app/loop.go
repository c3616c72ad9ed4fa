package app

import (
	"context"
	"errors"
	"log"
	"time"

	"gasmeter/internal/capture"
	"gasmeter/internal/estimate"
	"gasmeter/internal/publish"
	"gasmeter/internal/stabilize"
	"gasmeter/internal/store"
	"gasmeter/internal/timeutil"

	"github.com/google/uuid"
)

// MinWait is the shortest wait between schedule checks.
const MinWait = 100 * time.Millisecond

// ErrRestart is returned by Run when the binary changed and the caller
// should re-exec.
var ErrRestart = errors.New("binary changed, restart requested")

// Diagnostics receives the boundaries of each cycle.
type Diagnostics interface {
	Begin(cycle string) error
	Archive(ts time.Time, value float64) (string, error)
}

// ReadingLog stores one record per cycle.
type ReadingLog interface {
	Insert(ctx context.Context, r store.Record) error
}

// Loop runs reading cycles on a fixed period.
type Loop struct {
	Source      capture.Source
	Frames      int
	Estimator   *estimate.Estimator
	Stabilizer  *stabilize.Stabilizer
	Publisher   publish.Publisher
	State       *State
	Period      time.Duration
	Clock       timeutil.Clock
	Diagnostics Diagnostics  // optional
	Log         ReadingLog   // optional
	Reloader    *HotReloader // optional
	NewID       func() string
}

// Outcome summarises one cycle.
type Outcome struct {
	CycleID  string
	Start    time.Time
	Status   store.Status
	Result   estimate.CycleResult
	Decision stabilize.Decision
	Err      error
}

func (l *Loop) clock() timeutil.Clock {
	if l.Clock == nil {
		return timeutil.RealClock{}
	}
	return l.Clock
}

func (l *Loop) newID() string {
	if l.NewID == nil {
		return uuid.NewString()
	}
	return l.NewID()
}

// Run executes cycles until ctx is cancelled, starting each one a Period
// after the previous one started. Cancellation is only observed between
// cycles. It returns ErrRestart if the hot reloader saw a new binary.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		start := l.clock().Now()
		l.RunCycle(ctx)

		if l.Reloader != nil && l.Reloader.Changed() {
			log.Printf("[Cycle] newer binary at %s", l.Reloader.ExecPath())
			return ErrRestart
		}
		if err := SleepUntil(ctx, l.clock(), start.Add(l.Period)); err != nil {
			return nil
		}
	}
}

// RunCycle captures, estimates, stabilizes and publishes one reading. It
// never fails: every problem ends as a skipped, rejected or failed outcome.
func (l *Loop) RunCycle(ctx context.Context) Outcome {
	// A started cycle runs to completion.
	ctx = context.WithoutCancel(ctx)

	out := Outcome{CycleID: l.newID(), Start: l.clock().Now()}
	defer l.record(ctx, &out)

	if l.Diagnostics != nil {
		if err := l.Diagnostics.Begin(out.CycleID); err != nil {
			log.Printf("[Cycle] diagnostics: %v", err)
		}
	}

	frames, err := l.Source.Capture(ctx, l.Frames)
	defer capture.Close(frames)
	if err != nil {
		return l.skip(out, err)
	}

	out.Result, err = l.Estimator.EstimateCycle(frames, l.State.History)
	if err != nil {
		return l.skip(out, err)
	}

	d := l.Stabilizer.Stabilize(out.Result.Candidate, l.State.Range, l.State.LastAccepted)
	out.Decision = d
	if d.RangeChanged {
		if err := l.State.SetRange(d.Range); err != nil {
			log.Printf("[Cycle] %v", err)
		}
	}

	if d.Rejected {
		out.Status = store.StatusRejected
		log.Printf("[Cycle] %s: %s", out.CycleID, d)
		if l.Diagnostics != nil {
			if dir, err := l.Diagnostics.Archive(out.Start, d.Value); err != nil {
				log.Printf("[Cycle] archive: %v", err)
			} else {
				log.Printf("[Cycle] diagnostics kept in %s", dir)
			}
		}
		l.State.Emit(EventReadingRejected, out)
		return out
	}

	msg := publish.Message{Reading: d.Value, Timestamp: out.Start}
	if err := l.Publisher.Publish(ctx, msg); err != nil {
		out.Status = store.StatusFailed
		out.Err = err
		log.Printf("[Cycle] %s: %v", out.CycleID, err)
		l.State.Emit(EventPublishFailed, out)
		return out
	}

	l.State.Accept(d.Value)
	out.Status = store.StatusPublished
	log.Printf("[Cycle] %s: %s from %d/%d frames", out.CycleID, d, out.Result.ValidFrames, out.Result.TotalFrames)
	l.State.Emit(EventReadingPublished, out)
	return out
}

func (l *Loop) skip(out Outcome, err error) Outcome {
	out.Status = store.StatusSkipped
	out.Err = err
	log.Printf("[Cycle] %s skipped: %v", out.CycleID, err)
	l.State.Emit(EventCycleSkipped, out)
	return out
}

func (l *Loop) record(ctx context.Context, out *Outcome) {
	if l.Log == nil {
		return
	}
	r := store.Record{
		CycleID:     out.CycleID,
		TakenAt:     out.Start,
		Status:      out.Status,
		Candidate:   out.Result.Candidate,
		Value:       out.Decision.Value,
		Frames:      out.Result.TotalFrames,
		ValidFrames: out.Result.ValidFrames,
	}
	if out.Err != nil {
		r.Note = out.Err.Error()
	}
	if err := l.Log.Insert(ctx, r); err != nil {
		log.Printf("[Cycle] reading log: %v", err)
	}
}

// SleepUntil waits until deadline, halving the remaining time on each wait
// down to MinWait so shutdown stays responsive. It returns ctx.Err() if ctx
// is cancelled first.
func SleepUntil(ctx context.Context, clock timeutil.Clock, deadline time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := clock.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		wait := remaining / 2
		if wait < MinWait {
			wait = MinWait
		}
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(wait):
		}
	}
}
