package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"nyaya/engine/internal/annotation"
	"nyaya/engine/internal/draft"
	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/negotiation"
)

// documentSession holds one reviewed document from decode to final draft.
// Sessions are independent; a negotiation run in one never touches another.
type documentSession struct {
	id string

	mu sync.Mutex
	// annotated is the decoded document with inline risk markers; plain is
	// the same text with the markers stripped, used for draft assembly.
	annotated string
	plain     string
	findings  []annotation.Finding
	summary   annotation.RiskSummary

	batch     *negotiation.Batch
	cancelRun context.CancelFunc
	running   bool
	// runDone is closed when the active run goroutine exits.
	runDone chan struct{}

	draft        string
	draftSummary *draft.Summary
}

func (s *documentSession) findingByID(id string) (annotation.Finding, bool) {
	for _, f := range s.findings {
		if f.ID == id {
			return f, true
		}
	}
	return annotation.Finding{}, false
}

// selectFindings resolves requested ids to findings in document order. An
// empty request selects everything.
func (s *documentSession) selectFindings(ids []string) ([]annotation.Finding, string) {
	if len(ids) == 0 {
		return s.findings, ""
	}
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}
	var selected []annotation.Finding
	for _, f := range s.findings {
		if requested[f.ID] {
			selected = append(selected, f)
			delete(requested, f.ID)
		}
	}
	for id := range requested {
		return nil, id
	}
	return selected, ""
}

func (e *Engine) session(id string) (*documentSession, *errinfo.ErrorInfo) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	session, ok := e.sessions[id]
	if !ok {
		return nil, errinfo.SessionNotFound(errinfo.PhaseNegotiate, id)
	}
	return session, nil
}

func (e *Engine) SessionCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Document string `json:"document"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, "invalid params")
	}
	if strings.TrimSpace(req.Document) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, "document is empty")
	}
	annotated, findings := annotation.Decode(req.Document)
	session := &documentSession{
		id:        e.newSessionID(),
		annotated: annotated,
		plain:     annotation.StripMarkers(annotated),
		findings:  findings,
		summary:   annotation.Summarize(findings),
	}
	e.sessionMu.Lock()
	e.sessions[session.id] = session
	e.sessionMu.Unlock()
	e.logger.Debug("session.create", "session_id", session.id, "findings", len(findings))
	return map[string]any{
		"session_id":   session.id,
		"document":     session.annotated,
		"findings":     session.findings,
		"risk_summary": session.summary,
	}, nil
}

func (e *Engine) SessionGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	result := map[string]any{
		"session_id":   session.id,
		"document":     session.annotated,
		"findings":     session.findings,
		"risk_summary": session.summary,
		"negotiating":  session.running,
	}
	if session.batch != nil {
		raw, err := json.Marshal(session.batch)
		if err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, err.Error())
		}
		result["batch"] = json.RawMessage(raw)
	}
	if session.draftSummary != nil {
		result["draft_summary"] = session.draftSummary
	}
	return result, nil
}

func (e *Engine) SessionClose(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, "invalid params")
	}
	session, errInfo := e.session(req.SessionID)
	if errInfo != nil {
		return nil, errInfo
	}
	session.mu.Lock()
	if session.cancelRun != nil {
		session.cancelRun()
	}
	session.mu.Unlock()
	e.sessionMu.Lock()
	delete(e.sessions, req.SessionID)
	e.sessionMu.Unlock()
	e.logger.Debug("session.close", "session_id", req.SessionID)
	return map[string]any{}, nil
}
