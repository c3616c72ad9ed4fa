package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gasmeter/internal/dial"
	"gasmeter/internal/estimate"
	"gasmeter/internal/monitoring"
	"gasmeter/internal/publish"
	"gasmeter/internal/stabilize"
	"gasmeter/internal/store"
	"gasmeter/internal/timeutil"
	"gasmeter/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeSource struct {
	err   error
	calls int
}

func (s *fakeSource) Capture(_ context.Context, n int) ([]gocv.Mat, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	}
	return frames, nil
}

// fixedReader sees four dials on every frame and reads the queued vectors.
type fixedReader struct {
	readings []dial.ReadingVector
}

func (r *fixedReader) Locate(gocv.Mat) ([]geometry.Circle, error) {
	return []geometry.Circle{
		{X: 10, Y: 50, Radius: 30},
		{X: 80, Y: 50, Radius: 30},
		{X: 150, Y: 50, Radius: 30},
		{X: 220, Y: 50, Radius: 30},
	}, nil
}

func (r *fixedReader) ReadFrame(gocv.Mat, []geometry.Circle) (dial.ReadingVector, error) {
	if len(r.readings) == 0 {
		return dial.ReadingVector{}, errors.New("no reading queued")
	}
	v := r.readings[0]
	r.readings = r.readings[1:]
	return v, nil
}

func vec(digits []int, rem float64) dial.ReadingVector {
	return dial.ReadingVector{Digits: digits, Remainder: rem, HasRemainder: true}
}

type fakePublisher struct {
	err    error
	sent   []publish.Message
	onSend func()
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, msg publish.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	if p.onSend != nil {
		p.onSend()
	}
	return nil
}

func (p *fakePublisher) Close() { p.closed = true }

type fakeDiagnostics struct {
	begun    []string
	archived []float64
}

func (d *fakeDiagnostics) Begin(cycle string) error {
	d.begun = append(d.begun, cycle)
	return nil
}

func (d *fakeDiagnostics) Archive(_ time.Time, value float64) (string, error) {
	d.archived = append(d.archived, value)
	return "archive", nil
}

type fakeLog struct {
	records []store.Record
}

func (l *fakeLog) Insert(_ context.Context, r store.Record) error {
	l.records = append(l.records, r)
	return nil
}

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	loop   *Loop
	reader *fixedReader
	source *fakeSource
	pub    *fakePublisher
	diag   *fakeDiagnostics
	log    *fakeLog
	clock  *timeutil.MockClock
}

func newFixture(t *testing.T, readings ...dial.ReadingVector) *fixture {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	f := &fixture{
		reader: &fixedReader{readings: readings},
		source: &fakeSource{},
		pub:    &fakePublisher{},
		diag:   &fakeDiagnostics{},
		log:    &fakeLog{},
		clock:  timeutil.NewMockClock(t0),
	}
	stab, err := stabilize.NewStabilizer(stabilize.DefaultPolicy())
	require.NoError(t, err)

	ids := 0
	f.loop = &Loop{
		Source:      f.source,
		Frames:      1,
		Estimator:   estimate.NewEstimator(f.reader, geometry.RectInt{}, dial.DefaultDials()),
		Stabilizer:  stab,
		Publisher:   f.pub,
		State:       NewState(filepath.Join(t.TempDir(), "range.json"), estimate.DefaultHistoryCapacity),
		Period:      5 * time.Minute,
		Clock:       f.clock,
		Diagnostics: f.diag,
		Log:         f.log,
		NewID: func() string {
			ids++
			return "cycle-" + string(rune('0'+ids))
		},
	}
	return f
}

func TestRunCyclePublishes(t *testing.T) {
	f := newFixture(t, vec([]int{1, 2, 3, 4}, 0.4))

	var events []EventType
	f.loop.State.On(EventRangeChanged, func(interface{}) { events = append(events, EventRangeChanged) })
	f.loop.State.On(EventReadingPublished, func(interface{}) { events = append(events, EventReadingPublished) })

	out := f.loop.RunCycle(context.Background())
	require.NoError(t, out.Err)
	assert.Equal(t, store.StatusPublished, out.Status)
	assert.Equal(t, "cycle-1", out.CycleID)

	require.Len(t, f.pub.sent, 1)
	assert.InDelta(t, 1234.4, f.pub.sent[0].Reading, 1e-9)
	assert.Equal(t, t0, f.pub.sent[0].Timestamp)

	require.NotNil(t, f.loop.State.LastAccepted)
	assert.InDelta(t, 1234.4, *f.loop.State.LastAccepted, 1e-9)
	assert.Equal(t, &stabilize.ExpectedRange{Low: 0, High: 2000}, f.loop.State.Range)
	assert.Equal(t, 1, f.loop.State.History.Len())
	assert.Equal(t, []EventType{EventRangeChanged, EventReadingPublished}, events)

	saved, err := stabilize.LoadRange(f.loop.State.RangePath)
	require.NoError(t, err)
	assert.Equal(t, stabilize.ExpectedRange{Low: 0, High: 2000}, *saved)

	assert.Equal(t, []string{"cycle-1"}, f.diag.begun)
	require.Len(t, f.log.records, 1)
	assert.Equal(t, store.StatusPublished, f.log.records[0].Status)
	assert.Equal(t, 1, f.log.records[0].ValidFrames)
}

func TestRunCycleRejectsOutlier(t *testing.T) {
	f := newFixture(t, vec([]int{1, 0, 0, 5}, 0))
	f.loop.State.Accept(1000.0)

	out := f.loop.RunCycle(context.Background())
	assert.Equal(t, store.StatusRejected, out.Status)
	assert.True(t, out.Decision.Rejected)
	assert.Empty(t, f.pub.sent)
	assert.Equal(t, 1000.0, *f.loop.State.LastAccepted)
	assert.Equal(t, []float64{1005}, f.diag.archived)
	assert.Equal(t, store.StatusRejected, f.log.records[0].Status)
}

func TestRunCycleFloorsSmallDecrease(t *testing.T) {
	f := newFixture(t, vec([]int{0, 9, 9, 9}, 0.8))
	f.loop.State.Accept(1000.0)

	out := f.loop.RunCycle(context.Background())
	assert.Equal(t, store.StatusPublished, out.Status)
	require.Len(t, f.pub.sent, 1)
	assert.Equal(t, 1000.0, f.pub.sent[0].Reading)
	assert.Equal(t, 1000.0, *f.loop.State.LastAccepted)
}

func TestRunCyclePublishFailureKeepsState(t *testing.T) {
	f := newFixture(t, vec([]int{1, 0, 0, 0}, 0.4))
	f.loop.State.Accept(1000.0)
	f.pub.err = errors.New("broker down")

	out := f.loop.RunCycle(context.Background())
	assert.Equal(t, store.StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "broker down")
	assert.Equal(t, 1000.0, *f.loop.State.LastAccepted)
	assert.Equal(t, "broker down", f.log.records[0].Note)
}

func TestRunCycleSkips(t *testing.T) {
	t.Run("capture failure", func(t *testing.T) {
		f := newFixture(t)
		f.source.err = errors.New("camera gone")
		skipped := 0
		f.loop.State.On(EventCycleSkipped, func(interface{}) { skipped++ })

		out := f.loop.RunCycle(context.Background())
		assert.Equal(t, store.StatusSkipped, out.Status)
		assert.Equal(t, 1, skipped)
		assert.Nil(t, f.loop.State.Range)
		assert.Equal(t, store.StatusSkipped, f.log.records[0].Status)
	})

	t.Run("no valid frames", func(t *testing.T) {
		f := newFixture(t) // reader has nothing queued
		out := f.loop.RunCycle(context.Background())
		assert.Equal(t, store.StatusSkipped, out.Status)
		assert.ErrorIs(t, out.Err, estimate.ErrNoValidFrames)
		assert.Nil(t, f.loop.State.LastAccepted)
	})
}

func TestRunCycleIgnoresCancellation(t *testing.T) {
	f := newFixture(t, vec([]int{1, 2, 3, 4}, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.loop.RunCycle(ctx)
	assert.Equal(t, store.StatusPublished, out.Status)
}

func TestRunSchedulesByPeriod(t *testing.T) {
	f := newFixture(t,
		vec([]int{1, 2, 3, 4}, 0.4),
		vec([]int{1, 2, 3, 4}, 0.6),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pub.onSend = func() {
		if len(f.pub.sent) == 2 {
			cancel()
		}
	}

	require.NoError(t, f.loop.Run(ctx))
	require.Len(t, f.pub.sent, 2)
	assert.Equal(t, t0, f.pub.sent[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), f.pub.sent[1].Timestamp)
	assert.InDelta(t, 1234.6, *f.loop.State.LastAccepted, 1e-9)
	assert.Equal(t, 2, f.loop.State.History.Len())
}

func TestRunStopsForNewBinary(t *testing.T) {
	f := newFixture(t, vec([]int{1, 2, 3, 4}, 0))

	bin := filepath.Join(t.TempDir(), "gasmeter")
	require.NoError(t, os.WriteFile(bin, []byte("v1"), 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(bin, past, past))
	f.loop.Reloader = newHotReloaderFor(bin)
	require.NotNil(t, f.loop.Reloader)
	require.NoError(t, os.Chtimes(bin, time.Now(), time.Now()))

	err := f.loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrRestart)
	assert.Equal(t, 1, f.source.calls)
}

func TestSleepUntilHalvesWaits(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	require.NoError(t, SleepUntil(context.Background(), clock, t0.Add(time.Second)))

	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		250 * time.Millisecond,
		125 * time.Millisecond,
		100 * time.Millisecond,
		25 * time.Millisecond,
	}, clock.Waits())
	assert.Equal(t, t0.Add(time.Second), clock.Now())
}

func TestSleepUntilPastDeadline(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	require.NoError(t, SleepUntil(context.Background(), clock, t0.Add(-time.Second)))
	assert.Empty(t, clock.Waits())
}

func TestSleepUntilCancelled(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SleepUntil(ctx, clock, t0.Add(time.Minute))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, clock.Waits())
}
