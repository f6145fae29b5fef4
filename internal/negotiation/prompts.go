package negotiation

import (
	"fmt"
	"strings"
)

const partyASystem = `You are Corporate Counsel (Party A) defending the original contract clause.
Your goal: Preserve the original phrasing, maximize legal protection for the disclosing party,
and minimize liability. Argue concisely why the original clause should remain as-is or with
minimal changes. Reference Indian Contract Act principles where relevant.
Keep your response to 2-3 sentences max.`

const partyBSystem = `You are the Reviewing Party's Legal Advisor (Party B) advocating for fairer terms.
Your goal: Argue why the clause needs modification to be balanced. You have a specific
suggestion to work from. Push for changes that protect the receiving party while remaining
reasonable. Reference Indian Contract Act principles where relevant.
Keep your response to 2-3 sentences max.`

const judgeSystem = `You are a neutral Judge evaluating a legal clause negotiation.
You have read the full debate between Party A (defending original) and Party B (advocating changes).

You must output EXACTLY two sections separated by "---":

Section 1 - Your reasoning: 2-3 sentences analyzing both sides' arguments, noting strengths
and weaknesses, and explaining your decision.

---

Section 2 - The balanced clause: ONLY the replacement clause text that both parties should accept.
No preamble, no quotes, just the clause.`

func systemPrompt(party Party) string {
	if party == PartyA {
		return partyASystem
	}
	return partyBSystem
}

func transcriptHistory(transcript []DebateMessage) string {
	lines := make([]string, 0, len(transcript))
	for _, m := range transcript {
		name := "Party A"
		if m.Party == PartyB {
			name = "Party B"
		}
		lines = append(lines, fmt.Sprintf("%s (Round %d): %s", name, m.Round, m.Text))
	}
	return strings.Join(lines, "\n")
}

func turnPrompt(party Party, clause, suggestion, citation string, transcript []DebateMessage, round int) string {
	history := transcriptHistory(transcript)
	if history == "" {
		history = "(Opening argument)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Original clause: %q\n", clause)
	if party == PartyA {
		fmt.Fprintf(&b, "Suggested change: %q\n", suggestion)
	} else {
		fmt.Fprintf(&b, "Your suggested change: %q\n", suggestion)
	}
	if citation != "" {
		fmt.Fprintf(&b, "Legal citation: %q\n", citation)
	}
	fmt.Fprintf(&b, "\nDebate history:\n%s\n\n", history)
	if party == PartyA {
		fmt.Fprintf(&b, "This is Round %d. Make your argument for preserving the original clause.", round)
	} else {
		fmt.Fprintf(&b, "This is Round %d. Respond to Party A's argument and advocate for the suggested changes.", round)
	}
	return b.String()
}

func verdictPrompt(clause, suggestion string, transcript []DebateMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original clause: %q\n", clause)
	fmt.Fprintf(&b, "Suggested change: %q\n", suggestion)
	fmt.Fprintf(&b, "\nFull debate:\n%s\n\n", transcriptHistory(transcript))
	b.WriteString("Evaluate both sides and produce your verdict.")
	return b.String()
}

const verdictSeparator = "---"

const fallbackReasoning = "The judge has evaluated both arguments."

// ParseVerdict splits the judge's reply into reasoning and balanced clause on
// the first "---" separator. A reply with no separator is taken entirely as
// the clause, with stock reasoning.
func ParseVerdict(raw string) Verdict {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, verdictSeparator); idx >= 0 {
		return Verdict{
			Reasoning:      strings.TrimSpace(trimmed[:idx]),
			BalancedClause: strings.TrimSpace(trimmed[idx+len(verdictSeparator):]),
		}
	}
	return Verdict{
		Reasoning:      fallbackReasoning,
		BalancedClause: trimmed,
	}
}
