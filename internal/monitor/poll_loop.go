package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/notification"
)

// State is the poll loop state
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// SnapshotSource produces resource snapshots
type SnapshotSource interface {
	Name() string
	Fetch(ctx context.Context) (*model.Snapshot, error)
}

// Dispatcher delivers alerts to notification channels
type Dispatcher interface {
	Dispatch(ctx context.Context, alert model.Alert) notification.Report
}

// Update is published to observers after every successful cycle
type Update struct {
	Snapshot *model.Snapshot `json:"data"`
	Alerts   []model.Alert   `json:"alerts"`
	At       time.Time       `json:"at"`
}

// Observer receives dashboard updates
type Observer interface {
	OnUpdate(ctx context.Context, update Update)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, update Update)

func (f ObserverFunc) OnUpdate(ctx context.Context, update Update) { f(ctx, update) }

// Cycle is the outcome of one poll cycle
type Cycle struct {
	Snapshot  *model.Snapshot
	Alerts    []model.Alert
	Reports   []notification.Report
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// PollLoopConfig configures a poll loop
type PollLoopConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Backoff  RetryStrategy
}

// PollLoop periodically fetches a snapshot, evaluates it and dispatches alerts
type PollLoop struct {
	logger     *zap.Logger
	config     PollLoopConfig
	source     SnapshotSource
	thresholds *ThresholdRegistry
	evaluator  *Evaluator
	dispatcher Dispatcher
	observers  []Observer

	state    atomic.Int32
	mu       sync.Mutex
	cron     *cron.Cron
	initial  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	failures int
	retryAt  time.Time
}

// NewPollLoop creates a poll loop
func NewPollLoop(config PollLoopConfig, source SnapshotSource, thresholds *ThresholdRegistry,
	dispatcher Dispatcher, logger *zap.Logger, observers ...Observer) *PollLoop {
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	return &PollLoop{
		logger:     logger.Named("poll-loop"),
		config:     config,
		source:     source,
		thresholds: thresholds,
		evaluator:  NewEvaluator(),
		dispatcher: dispatcher,
		observers:  observers,
	}
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start runs an initial check and schedules the periodic ones
func (l *PollLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cron != nil {
		return ErrAlreadyStarted
	}

	cl := &cronLogger{logger: l.logger.Named("cron").Sugar()}
	l.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.cron.Schedule(cron.Every(l.config.Interval), cron.FuncJob(l.tick))
	l.cron.Start()

	l.initial.Add(1)
	go func() {
		defer l.initial.Done()
		l.tick()
	}()

	l.logger.Info("Resource monitoring started",
		zap.String("source", l.source.Name()),
		zap.Duration("interval", l.config.Interval))
	return nil
}

// Stop cancels the running cycle and waits for the initial check and
// scheduled jobs to finish
func (l *PollLoop) Stop() {
	l.mu.Lock()
	c, cancel := l.cron, l.cancel
	l.cron = nil
	l.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	l.initial.Wait()
	l.logger.Info("Resource monitoring stopped")
}

// State returns the current state
func (l *PollLoop) State() State {
	return State(l.state.Load())
}

// Trigger runs one cycle immediately, ignoring any backoff delay
func (l *PollLoop) Trigger(ctx context.Context) (Cycle, error) {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		return Cycle{}, ErrPollInProgress
	}
	defer l.state.Store(int32(StateIdle))
	return l.run(ctx), nil
}

// PollOnce runs a single cycle like Trigger, reporting ErrPollInProgress
// through Cycle.Err
func (l *PollLoop) PollOnce(ctx context.Context) Cycle {
	cycle, err := l.Trigger(ctx)
	if err != nil {
		cycle.Err = err
	}
	return cycle
}

// tick is the scheduled entry point
func (l *PollLoop) tick() {
	l.mu.Lock()
	ctx := l.ctx
	retryAt := l.retryAt
	l.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !retryAt.IsZero() && time.Now().Before(retryAt) {
		l.logger.Debug("Skipping poll during backoff", zap.Time("retry_at", retryAt))
		return
	}
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		l.logger.Debug("Skipping poll, previous cycle still running")
		return
	}
	defer l.state.Store(int32(StateIdle))
	l.run(ctx)
}

// run performs one fetch-evaluate-dispatch cycle. It never panics on a
// failed fetch; the failure becomes a single connection alert.
func (l *PollLoop) run(ctx context.Context) (cycle Cycle) {
	cycle.StartedAt = time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Poll cycle panicked", zap.Any("panic", r))
		}
		cycle.Duration = time.Since(cycle.StartedAt)
	}()

	snapshot, err := l.fetch(ctx)
	if err != nil && ctx.Err() != nil {
		// shutting down, not a connection problem
		l.logger.Debug("Poll cancelled", zap.Error(err))
		cycle.Err = err
		return cycle
	}
	l.recordOutcome(err)
	if err != nil {
		l.logger.Error("Failed to check resources",
			zap.String("source", l.source.Name()),
			zap.Error(err))
		cycle.Err = err
		cycle.Alerts = []model.Alert{model.ConnectionAlert(time.Now())}
		cycle.Reports = append(cycle.Reports, l.dispatcher.Dispatch(ctx, cycle.Alerts[0]))
		return cycle
	}

	cycle.Snapshot = snapshot
	cycle.Alerts = l.evaluator.Evaluate(snapshot, l.thresholds.Thresholds())
	for _, alert := range cycle.Alerts {
		cycle.Reports = append(cycle.Reports, l.dispatcher.Dispatch(ctx, alert))
	}

	update := Update{Snapshot: snapshot, Alerts: cycle.Alerts, At: cycle.StartedAt}
	for _, o := range l.observers {
		o.OnUpdate(ctx, update)
	}

	l.logger.Debug("Resources checked",
		zap.String("source", l.source.Name()),
		zap.Int("alert_count", len(cycle.Alerts)))
	return cycle
}

func (l *PollLoop) fetch(ctx context.Context) (*model.Snapshot, error) {
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	snapshot, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, &FetchError{Source: l.source.Name(), Err: ErrNilSnapshot}
	}
	return snapshot, nil
}

// recordOutcome tracks consecutive failures for the optional backoff
func (l *PollLoop) recordOutcome(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.failures = 0
		l.retryAt = time.Time{}
		return
	}
	l.failures++
	if l.config.Backoff != nil {
		l.retryAt = time.Now().Add(l.config.Backoff.NextRetry(l.failures))
	}
}
