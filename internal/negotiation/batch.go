package negotiation

import (
	"fmt"

	"nyaya/engine/internal/annotation"
)

// Decision records the consumer's ruling on a verdict.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Status describes the lifecycle of a batch as a whole.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusNegotiating Status = "negotiating"
	StatusReviewing   Status = "reviewing"
	StatusDone        Status = "done"
	StatusError       Status = "error"
)

// Entry is the accumulated negotiation state for one finding. Entries are
// created by the debate_start event and mutated only through Apply and
// SetDecision.
type Entry struct {
	FindingID      string           `json:"finding_id"`
	Level          annotation.Level `json:"level"`
	ClauseText     string           `json:"clause_text"`
	Messages       []DebateMessage  `json:"messages"`
	JudgeReasoning string           `json:"judge_reasoning,omitempty"`
	BalancedClause string           `json:"balanced_clause,omitempty"`
	Decision       Decision         `json:"decision"`
	Failed         bool             `json:"failed,omitempty"`
	FailureReason  string           `json:"failure_reason,omitempty"`
}

// Batch holds the entries for one negotiation run. Apply is the single
// reducer for stream events; exactly one goroutine feeds it, so the batch
// needs no internal locking.
type Batch struct {
	ID      string            `json:"id"`
	Status  Status            `json:"status"`
	Entries map[string]*Entry `json:"entries"`
	// Order preserves the document order of the selected findings, which is
	// also the order replacements are applied during draft assembly.
	Order        []string `json:"order"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

func NewBatch(id string, selected []annotation.Finding) *Batch {
	order := make([]string, 0, len(selected))
	for _, f := range selected {
		order = append(order, f.ID)
	}
	return &Batch{
		ID:      id,
		Status:  StatusConnecting,
		Entries: make(map[string]*Entry, len(selected)),
		Order:   order,
	}
}

// Apply folds one stream event into the batch. It is a pure state
// transition: invalid events (an unknown finding, a second verdict) return an
// error and leave the batch unchanged.
func (b *Batch) Apply(ev Event) error {
	switch ev.Type {
	case EventDebateStart:
		if _, exists := b.Entries[ev.RiskID]; exists {
			return fmt.Errorf("duplicate debate_start for %s", ev.RiskID)
		}
		b.Status = StatusNegotiating
		b.Entries[ev.RiskID] = &Entry{
			FindingID:  ev.RiskID,
			Level:      annotation.Level(ev.RiskType),
			ClauseText: ev.Clause,
			Decision:   DecisionPending,
		}
	case EventPartyA, EventPartyB:
		entry, ok := b.Entries[ev.RiskID]
		if !ok {
			return fmt.Errorf("argument turn for unknown finding %s", ev.RiskID)
		}
		party := PartyA
		if ev.Type == EventPartyB {
			party = PartyB
		}
		entry.Messages = append(entry.Messages, DebateMessage{Party: party, Round: ev.Round, Text: ev.Message})
	case EventJudgeVerdict:
		entry, ok := b.Entries[ev.RiskID]
		if !ok {
			return fmt.Errorf("verdict for unknown finding %s", ev.RiskID)
		}
		if entry.BalancedClause != "" || entry.JudgeReasoning != "" {
			return fmt.Errorf("second verdict for %s", ev.RiskID)
		}
		entry.JudgeReasoning = ev.Reasoning
		entry.BalancedClause = ev.BalancedClause
	case EventError:
		if ev.RiskID == "" {
			b.Status = StatusError
			b.ErrorMessage = ev.Message
			return nil
		}
		entry, ok := b.Entries[ev.RiskID]
		if !ok {
			// A session can fail before its debate_start was delivered.
			entry = &Entry{FindingID: ev.RiskID, Decision: DecisionPending}
			b.Entries[ev.RiskID] = entry
		}
		entry.Failed = true
		entry.FailureReason = ev.Message
	case EventDone:
		b.Status = StatusReviewing
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// SetDecision records an accept or reject. Decisions may be revisited until
// the final draft is generated; accepting requires a verdict to exist.
func (b *Batch) SetDecision(findingID string, decision Decision) error {
	entry, ok := b.Entries[findingID]
	if !ok {
		return fmt.Errorf("unknown finding %s", findingID)
	}
	switch decision {
	case DecisionAccepted:
		if entry.BalancedClause == "" {
			return fmt.Errorf("finding %s has no verdict to accept", findingID)
		}
	case DecisionRejected, DecisionPending:
	default:
		return fmt.Errorf("invalid decision %q", decision)
	}
	entry.Decision = decision
	return nil
}

// AcceptedEntries returns the accepted entries in document order.
func (b *Batch) AcceptedEntries() []*Entry {
	var accepted []*Entry
	for _, id := range b.Order {
		entry, ok := b.Entries[id]
		if !ok {
			continue
		}
		if entry.Decision == DecisionAccepted && entry.BalancedClause != "" {
			accepted = append(accepted, entry)
		}
	}
	return accepted
}
