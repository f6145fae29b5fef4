// Package negotiation runs bounded adversarial debates over flagged contract
// clauses. For each selected finding, two fixed personas argue across a
// configured number of rounds and a judge issues a balanced verdict. Sessions
// run strictly one at a time and stream events to a single consumer.
package negotiation

import (
	"context"
	"time"

	"nyaya/engine/internal/annotation"
)

// Party identifies one side of the debate. Party A defends the original
// clause; Party B advocates the suggested rewrite.
type Party string

const (
	PartyA Party = "a"
	PartyB Party = "b"
)

// DebateMessage is one argument turn. Messages are append-only and ordered
// by emission within their session.
type DebateMessage struct {
	Party     Party     `json:"party"`
	Round     int       `json:"round"`
	Text      string    `json:"text"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Verdict is the arbitration output terminating a session.
type Verdict struct {
	Reasoning      string `json:"reasoning"`
	BalancedClause string `json:"balanced_clause"`
}

// Arguer is the external argument-generation capability. Calls may be slow
// and may fail; the session layer owns retries.
type Arguer interface {
	GenerateTurn(ctx context.Context, party Party, finding annotation.Finding, transcript []DebateMessage, round int) (string, error)
	GenerateVerdict(ctx context.Context, finding annotation.Finding, transcript []DebateMessage) (Verdict, error)
}

// EventType tags events on the negotiation stream. The names are part of the
// wire contract with the consumer.
type EventType string

const (
	EventDebateStart  EventType = "debate_start"
	EventPartyA       EventType = "party_a"
	EventPartyB       EventType = "party_b"
	EventJudgeVerdict EventType = "judge_verdict"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// Event is the tagged union streamed to the consumer. Only the fields
// relevant to the event's type are populated; Message carries an argument
// text for party events and the failure description for error events.
type Event struct {
	Type           EventType `json:"type"`
	RiskID         string    `json:"risk_id,omitempty"`
	RiskType       string    `json:"risk_type,omitempty"`
	Clause         string    `json:"clause,omitempty"`
	Round          int       `json:"round,omitempty"`
	Message        string    `json:"message,omitempty"`
	Reasoning      string    `json:"reasoning,omitempty"`
	BalancedClause string    `json:"balanced_clause,omitempty"`
}

func partyEventType(party Party) EventType {
	if party == PartyA {
		return EventPartyA
	}
	return EventPartyB
}
