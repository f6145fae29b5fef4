package engine

import (
	"context"
	"encoding/json"

	"nyaya/engine/internal/draft"
	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/negotiation"
)

func (e *Engine) DraftGenerate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDraft, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.batch == nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDraft, "no negotiation for session")
	}
	if session.running {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDraft, "negotiation still running")
	}

	accepted := session.batch.AcceptedEntries()
	replacements := make([]draft.Replacement, 0, len(accepted))
	for _, entry := range accepted {
		replacements = append(replacements, draft.Replacement{
			FindingID:      entry.FindingID,
			ClauseText:     entry.ClauseText,
			BalancedClause: entry.BalancedClause,
		})
	}
	// Replacements always apply to the pristine stripped document, so a
	// revised decision set can regenerate the draft from scratch.
	document, summary := draft.Build(session.plain, replacements)
	session.draft = document
	session.draftSummary = &summary
	session.batch.Status = negotiation.StatusDone
	e.logger.Debug("draft.generate", "session_id", session.id, "applied", summary.Applied, "total", summary.Total)
	return map[string]any{
		"draft":   document,
		"summary": summary,
		"message": summary.String(),
	}, nil
}

func (e *Engine) DraftGetTextDiff(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
		MaxLines  int    `json:"max_lines,omitempty"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDraft, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.draftSummary == nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseDraft, "no draft generated")
	}
	hunks, truncated := draft.TextDiffWithLimit(session.plain, session.draft, req.MaxLines)
	return map[string]any{"hunks": hunks, "truncated": truncated}, nil
}
