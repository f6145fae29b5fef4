package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nyaya/engine/internal/annotation"
	"nyaya/engine/internal/logging"
)

// ErrNoFindings is returned when a batch is started with nothing selected.
var ErrNoFindings = errors.New("no findings selected")

// Orchestrator runs one debate session per selected finding, strictly one at
// a time, over a single ordered event stream. A failed session is reported
// and the queue advances; it never takes down its siblings. The orchestrator
// keeps no state between batches.
type Orchestrator struct {
	arguer  Arguer
	rounds  int
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	onRetry func(findingID string, attempt, max int, wait time.Duration)
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRounds(rounds int) Option {
	return func(o *Orchestrator) {
		if rounds > 0 {
			o.rounds = rounds
		}
	}
}

// WithRetryNotifier installs a callback fired before each backoff wait in the
// generation retry loop.
func WithRetryNotifier(fn func(findingID string, attempt, max int, wait time.Duration)) Option {
	return func(o *Orchestrator) {
		o.onRetry = fn
	}
}

// WithClock overrides time and sleep behavior. Tests use this to avoid real
// backoff waits.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func NewOrchestrator(arguer Arguer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		arguer: arguer,
		rounds: 3,
		logger: logging.Nop(),
		now:    time.Now,
		sleep:  sleepWithContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run debates the findings in order and emits the event stream. Per session
// the order is debate_start, the argument turns (A before B each round), then
// judge_verdict or error; session i+1 never starts before session i reached
// its terminal event. A final done event closes a completed batch.
//
// Cancellation is cooperative: once ctx is done, no further events are
// emitted and Run returns the context error. A generation call already in
// flight is left to finish or time out on its own; its result is discarded.
func (o *Orchestrator) Run(ctx context.Context, findings []annotation.Finding, emit func(Event)) error {
	if len(findings) == 0 {
		return ErrNoFindings
	}
	for _, finding := range findings {
		if err := ctx.Err(); err != nil {
			return err
		}
		session := newSession(finding, o.rounds, o.arguer)
		session.now = o.now
		session.sleep = o.sleep
		session.onRetry = o.onRetry
		o.logger.Debug("negotiation.session_start", "finding_id", finding.ID, "level", string(finding.Level), "rounds", o.rounds)
		err := session.Run(ctx, func(ev Event) {
			if ctx.Err() != nil {
				return
			}
			emit(ev)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("negotiation.session_failed", "finding_id", finding.ID, "error", err.Error())
			emit(Event{Type: EventError, RiskID: finding.ID, Message: err.Error()})
			continue
		}
		o.logger.Debug("negotiation.session_done", "finding_id", finding.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	emit(Event{Type: EventDone})
	return nil
}
