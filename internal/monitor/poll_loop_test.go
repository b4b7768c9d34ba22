package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/notification"
)

type stubSource struct {
	snapshot *model.Snapshot
	err      error
	block    chan struct{}
	calls    atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context) (*model.Snapshot, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.snapshot, s.err
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (d *recordingDispatcher) Dispatch(_ context.Context, alert model.Alert) notification.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return notification.Report{}
}

func (d *recordingDispatcher) Alerts() []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Alert(nil), d.alerts...)
}

func newTestLoop(t *testing.T, source SnapshotSource, config PollLoopConfig, observers ...Observer) (*PollLoop, *recordingDispatcher) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dispatcher := &recordingDispatcher{}
	loop := NewPollLoop(config, source, NewThresholdRegistry(logger), dispatcher, logger, observers...)
	return loop, dispatcher
}

func TestPollLoop_FetchFailure(t *testing.T) {
	source := &stubSource{err: &FetchError{Source: "stub", StatusCode: 503}}
	var observed atomic.Int32
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{},
		ObserverFunc(func(context.Context, Update) { observed.Add(1) }))

	cycle, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	require.Error(t, cycle.Err)

	var fe *FetchError
	require.ErrorAs(t, cycle.Err, &fe)
	assert.Equal(t, 503, fe.StatusCode)

	alerts := dispatcher.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertKindError, alerts[0].Kind)
	assert.Equal(t, model.ResourceConnection, alerts[0].Resource)
	assert.Equal(t, "Failed to retrieve status", alerts[0].Message)

	assert.Equal(t, StateIdle, loop.State())
	assert.Zero(t, observed.Load())
}

func TestPollLoop_NilSnapshot(t *testing.T) {
	loop, dispatcher := newTestLoop(t, &stubSource{}, PollLoopConfig{})

	cycle, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, cycle.Err, ErrNilSnapshot)
	assert.Len(t, dispatcher.Alerts(), 1)
}

func TestPollLoop_Success(t *testing.T) {
	source := &stubSource{snapshot: &model.Snapshot{
		Paper:    &model.Consumable{Level: model.Measured(5)},
		Hardware: &model.Hardware{Errors: []model.HardwareError{{Code: "E1", Message: "Door open"}}},
	}}

	var updates []Update
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{},
		ObserverFunc(func(_ context.Context, u Update) { updates = append(updates, u) }))

	cycle, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	require.NoError(t, cycle.Err)
	assert.Len(t, cycle.Reports, 2)

	alerts := dispatcher.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "Paper level low: 5%", alerts[0].Message)
	assert.Equal(t, "Hardware error: E1 - Door open", alerts[1].Message)

	require.Len(t, updates, 1)
	assert.Same(t, source.snapshot, updates[0].Snapshot)
	assert.Len(t, updates[0].Alerts, 2)
}

func TestPollLoop_NominalSnapshot(t *testing.T) {
	source := &stubSource{snapshot: &model.Snapshot{Paper: &model.Consumable{Level: model.Measured(80)}}}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{})

	cycle, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cycle.Alerts)
	assert.Empty(t, dispatcher.Alerts())
}

func TestPollLoop_TriggerWhilePolling(t *testing.T) {
	source := &stubSource{snapshot: &model.Snapshot{}, block: make(chan struct{})}
	loop, _ := newTestLoop(t, source, PollLoopConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := loop.Trigger(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return loop.State() == StatePolling }, 2*time.Second, 10*time.Millisecond)

	_, err := loop.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrPollInProgress)
	assert.ErrorIs(t, loop.PollOnce(context.Background()).Err, ErrPollInProgress)

	close(source.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestPollLoop_Timeout(t *testing.T) {
	source := &stubSource{block: make(chan struct{})}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{Timeout: 50 * time.Millisecond})

	cycle, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, cycle.Err, context.DeadlineExceeded)
	assert.Len(t, dispatcher.Alerts(), 1)
}

func TestPollLoop_StartStop(t *testing.T) {
	source := &stubSource{err: errors.New("connection refused")}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, loop.Start(ctx))
	assert.ErrorIs(t, loop.Start(ctx), ErrAlreadyStarted)

	// initial check runs immediately
	require.Eventually(t, func() bool { return len(dispatcher.Alerts()) == 1 }, 2*time.Second, 10*time.Millisecond)

	loop.Stop()
	loop.Stop()
	assert.Equal(t, StateIdle, loop.State())
}

func TestPollLoop_StopDuringInitialCheck(t *testing.T) {
	source := &stubSource{block: make(chan struct{})}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{Interval: time.Hour})

	require.NoError(t, loop.Start(context.Background()))
	require.Eventually(t, func() bool { return loop.State() == StatePolling }, 2*time.Second, 10*time.Millisecond)

	loop.Stop()

	// the initial check has finished and raised nothing
	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Empty(t, dispatcher.Alerts())
}

func TestPollLoop_CancelledTrigger(t *testing.T) {
	source := &stubSource{block: make(chan struct{})}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycle, err := loop.Trigger(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, cycle.Err, context.Canceled)
	assert.Empty(t, cycle.Alerts)
	assert.Empty(t, dispatcher.Alerts())
}

func TestPollLoop_Schedule(t *testing.T) {
	source := &stubSource{snapshot: &model.Snapshot{}}
	loop, _ := newTestLoop(t, source, PollLoopConfig{Interval: time.Second})

	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	require.Eventually(t, func() bool { return source.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestPollLoop_Backoff(t *testing.T) {
	source := &stubSource{err: errors.New("connection refused")}
	loop, dispatcher := newTestLoop(t, source, PollLoopConfig{
		Interval: time.Hour,
		Backoff:  &ExponentialBackoff{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2},
	})

	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()
	require.Eventually(t, func() bool { return source.calls.Load() == 1 && loop.State() == StateIdle },
		2*time.Second, 10*time.Millisecond)

	// scheduled ticks wait out the backoff
	loop.tick()
	assert.Equal(t, int32(1), source.calls.Load())

	// manual triggers ignore it
	_, err := loop.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
	assert.Len(t, dispatcher.Alerts(), 2)
}
