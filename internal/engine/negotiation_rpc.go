package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"nyaya/engine/internal/annotation"
	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/negotiation"
	"nyaya/engine/internal/settings"
)

const (
	notificationNegotiationEvent = "NegotiationEvent"
	notificationRateLimitWarning = "NegotiationRateLimitWarning"
)

type negotiationEventParams struct {
	SessionID string `json:"session_id"`
	BatchID   string `json:"batch_id"`
	negotiation.Event
}

func (e *Engine) NegotiationStart(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string   `json:"session_id"`
		RiskIDs   []string `json:"risk_ids,omitempty"`
		Rounds    int      `json:"rounds,omitempty"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}

	settingsData, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseNegotiate, err.Error())
	}
	if !settingsData.Providers[ProviderGoogle].Enabled {
		return nil, withProviderID(errinfo.ProviderNotConfigured(errinfo.PhaseNegotiate), ProviderGoogle)
	}
	client, errInfo := e.clientForProvider(ProviderGoogle)
	if errInfo != nil {
		return nil, errInfo
	}
	key, errInfo := e.providerKey(ProviderGoogle)
	if errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(key) == "" {
		return nil, withProviderID(errinfo.ProviderNotConfigured(errinfo.PhaseNegotiate), ProviderGoogle)
	}
	rounds := settingsData.DebateRounds
	if req.Rounds != 0 {
		rounds = settings.ClampDebateRounds(req.Rounds)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	// At most one batch is active per session: a new start cancels and
	// discards any batch still in flight.
	for session.running {
		if session.cancelRun != nil {
			session.cancelRun()
		}
		done := session.runDone
		session.mu.Unlock()
		<-done
		session.mu.Lock()
	}
	selected, missing := session.selectFindings(req.RiskIDs)
	if missing != "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "unknown finding "+missing)
	}
	if len(selected) == 0 {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "no findings to negotiate")
	}

	batchID := e.newSessionID()
	batch := negotiation.NewBatch(batchID, selected)
	session.batch = batch
	session.draft = ""
	session.draftSummary = nil

	arguer := &negotiation.LLMArguer{Client: client, APIKey: key, Model: modelName(settingsData.DefaultModelID)}
	orchestrator := negotiation.NewOrchestrator(arguer,
		negotiation.WithRounds(rounds),
		negotiation.WithLogger(e.logger),
		negotiation.WithClock(e.now, e.sleep),
		negotiation.WithRetryNotifier(func(findingID string, attempt, max int, wait time.Duration) {
			e.sendNotification(notificationRateLimitWarning, map[string]any{
				"session_id":   session.id,
				"finding_id":   findingID,
				"attempt":      attempt,
				"max_attempts": max,
				"wait_seconds": int(wait / time.Second),
			})
		}),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	session.cancelRun = cancel
	session.running = true
	session.runDone = make(chan struct{})
	e.logger.Debug("negotiation.start", "session_id", session.id, "batch_id", batchID, "findings", len(selected), "rounds", rounds)

	go e.runNegotiation(runCtx, session, batch, orchestrator, selected)

	return map[string]any{"batch_id": batchID, "rounds": rounds}, nil
}

func (e *Engine) runNegotiation(ctx context.Context, session *documentSession, batch *negotiation.Batch, orchestrator *negotiation.Orchestrator, selected []annotation.Finding) {
	err := orchestrator.Run(ctx, selected, func(ev negotiation.Event) {
		session.mu.Lock()
		if applyErr := batch.Apply(ev); applyErr != nil {
			e.logger.Warn("negotiation.apply_failed", "session_id", session.id, "error", applyErr.Error())
		}
		session.mu.Unlock()
		e.sendNotification(notificationNegotiationEvent, negotiationEventParams{
			SessionID: session.id,
			BatchID:   batch.ID,
			Event:     ev,
		})
	})
	session.mu.Lock()
	defer session.mu.Unlock()
	session.running = false
	session.cancelRun = nil
	close(session.runDone)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			batch.Status = negotiation.StatusError
			batch.ErrorMessage = "negotiation canceled"
			e.logger.Debug("negotiation.canceled", "session_id", session.id, "batch_id", batch.ID)
			return
		}
		batch.Status = negotiation.StatusError
		batch.ErrorMessage = err.Error()
		e.logger.Error("negotiation.failed", "session_id", session.id, "batch_id", batch.ID, "error", err.Error())
	}
}

func (e *Engine) NegotiationCancel(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.cancelRun != nil {
		session.cancelRun()
	}
	return map[string]any{}, nil
}

func (e *Engine) NegotiationGetState(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.batch == nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "no negotiation for session")
	}
	// Snapshot under the lock; the run goroutine mutates the batch while the
	// transport marshals responses outside it.
	raw, err := json.Marshal(session.batch)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, err.Error())
	}
	return map[string]any{"batch": json.RawMessage(raw), "negotiating": session.running}, nil
}

func (e *Engine) EntrySetDecision(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
		FindingID string `json:"finding_id"`
		Decision  string `json:"decision"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.batch == nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, "no negotiation for session")
	}
	if err := session.batch.SetDecision(req.FindingID, negotiation.Decision(req.Decision)); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseNegotiate, err.Error())
	}
	return map[string]any{}, nil
}
