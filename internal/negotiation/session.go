package negotiation

import (
	"context"
	"time"

	"nyaya/engine/internal/annotation"
	"nyaya/engine/internal/llm"
)

// State tracks where a debate session is in its lifecycle.
type State string

const (
	StatePending State = "pending"
	StateArguing State = "arguing"
	StateVerdict State = "verdict"
	StateClosed  State = "closed"
)

const (
	generationRetryMaxAttempts = 3
	generationRetryBaseDelay   = 2 * time.Second
	generationRetryMaxDelay    = 30 * time.Second
)

// Session drives one finding through its rounds and verdict. A session is
// single-use: Run may be called once, and after it returns the session holds
// no further mutable state.
type Session struct {
	finding    annotation.Finding
	rounds     int
	arguer     Arguer
	state      State
	transcript []DebateMessage

	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	onRetry func(findingID string, attempt, max int, wait time.Duration)
}

func newSession(finding annotation.Finding, rounds int, arguer Arguer) *Session {
	return &Session{
		finding: finding,
		rounds:  rounds,
		arguer:  arguer,
		state:   StatePending,
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

// Run executes the state machine: Pending -> Arguing(1..R) -> Verdict ->
// Closed. Events are delivered through emit in strict order. Any error closes
// the session without emitting a verdict; the caller decides how to surface
// it. The verdict is at-most-once: no retry happens after it was produced.
func (s *Session) Run(ctx context.Context, emit func(Event)) error {
	s.state = StateArguing
	emit(Event{
		Type:     EventDebateStart,
		RiskID:   s.finding.ID,
		RiskType: string(s.finding.Level),
		Clause:   s.finding.ClauseText,
	})

	for round := 1; round <= s.rounds; round++ {
		for _, party := range []Party{PartyA, PartyB} {
			text, err := s.turnWithRetry(ctx, party, round)
			if err != nil {
				s.state = StateClosed
				return err
			}
			msg := DebateMessage{Party: party, Round: round, Text: text, EmittedAt: s.now()}
			s.transcript = append(s.transcript, msg)
			emit(Event{
				Type:    partyEventType(party),
				RiskID:  s.finding.ID,
				Round:   round,
				Message: text,
			})
		}
	}

	s.state = StateVerdict
	verdict, err := s.verdictWithRetry(ctx)
	if err != nil {
		s.state = StateClosed
		return err
	}
	emit(Event{
		Type:           EventJudgeVerdict,
		RiskID:         s.finding.ID,
		Reasoning:      verdict.Reasoning,
		BalancedClause: verdict.BalancedClause,
	})
	s.state = StateClosed
	return nil
}

func (s *Session) turnWithRetry(ctx context.Context, party Party, round int) (string, error) {
	var text string
	err := s.withRetry(ctx, func() error {
		var genErr error
		text, genErr = s.arguer.GenerateTurn(ctx, party, s.finding, s.transcript, round)
		return genErr
	})
	return text, err
}

func (s *Session) verdictWithRetry(ctx context.Context) (Verdict, error) {
	var verdict Verdict
	err := s.withRetry(ctx, func() error {
		var genErr error
		verdict, genErr = s.arguer.GenerateVerdict(ctx, s.finding, s.transcript)
		return genErr
	})
	return verdict, err
}

// withRetry reissues a generation call with the same prompt context a bounded
// number of times, backing off exponentially on transient provider errors.
func (s *Session) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= generationRetryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !llm.Transient(err) || attempt == generationRetryMaxAttempts {
			return err
		}
		retryAttempt := attempt + 1
		wait := generationBackoffDuration(retryAttempt)
		if s.onRetry != nil {
			s.onRetry(s.finding.ID, retryAttempt, generationRetryMaxAttempts, wait)
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func generationBackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	wait := generationRetryBaseDelay * time.Duration(1<<uint(attempt-1))
	if wait > generationRetryMaxDelay {
		return generationRetryMaxDelay
	}
	return wait
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
