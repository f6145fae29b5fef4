package negotiation

import (
	"context"
	"fmt"

	"nyaya/engine/internal/annotation"
)

// fakeArguer is the in-package test double for the generation capability.
// Error hooks let tests script failures per finding, party, and round.
type fakeArguer struct {
	turnErr      func(findingID string, party Party, round int) error
	verdictErr   func(findingID string) error
	turnCalls    int
	verdictCalls int
}

func (f *fakeArguer) GenerateTurn(_ context.Context, party Party, finding annotation.Finding, transcript []DebateMessage, round int) (string, error) {
	f.turnCalls++
	if f.turnErr != nil {
		if err := f.turnErr(finding.ID, party, round); err != nil {
			return "", err
		}
	}
	name := "Party A"
	if party == PartyB {
		name = "Party B"
	}
	return fmt.Sprintf("%s argues round %d on %s (heard %d)", name, round, finding.ID, len(transcript)), nil
}

func (f *fakeArguer) GenerateVerdict(_ context.Context, finding annotation.Finding, transcript []DebateMessage) (Verdict, error) {
	f.verdictCalls++
	if f.verdictErr != nil {
		if err := f.verdictErr(finding.ID); err != nil {
			return Verdict{}, err
		}
	}
	return Verdict{
		Reasoning:      fmt.Sprintf("Weighed %d arguments on %s.", len(transcript), finding.ID),
		BalancedClause: "Balanced: " + finding.ClauseText,
	}, nil
}
