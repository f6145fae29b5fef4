// Package draft assembles the final contract text from accepted verdicts and
// renders a line diff for review.
package draft

import (
	"fmt"
	"sort"
	"strings"
)

// Replacement asks for one clause to be substituted by its negotiated
// rewrite. Replacements are applied in document order of their findings.
type Replacement struct {
	FindingID      string `json:"finding_id"`
	ClauseText     string `json:"clause_text"`
	BalancedClause string `json:"balanced_clause"`
}

// Warning reports a replacement that could not be applied. The draft is still
// produced; the caller decides whether to surface the miss.
type Warning struct {
	FindingID string `json:"finding_id"`
	Reason    string `json:"reason"`
}

// Summary describes the outcome of one draft assembly.
type Summary struct {
	Applied  int       `json:"applied"`
	Total    int       `json:"total"`
	Warnings []Warning `json:"warnings,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d of %d changes applied", s.Applied, s.Total)
}

const (
	markOpen  = `<mark data-negotiated="accepted">`
	markClose = `</mark>`
)

type span struct{ start, end int }

// Build applies the replacements to the document and wraps each inserted
// clause in a highlight marker. Each replacement consumes the first occurrence
// of its clause that no earlier replacement already touched; a clause that
// cannot be found is skipped with a warning rather than failing the draft.
// The input document is never mutated in place and Build may be called again
// with a revised decision set.
func Build(document string, replacements []Replacement) (string, Summary) {
	summary := Summary{Total: len(replacements)}
	var consumed []span
	for _, r := range replacements {
		if r.ClauseText == "" || r.BalancedClause == "" {
			summary.Warnings = append(summary.Warnings, Warning{
				FindingID: r.FindingID,
				Reason:    "replacement is missing clause or verdict text",
			})
			continue
		}
		idx := indexOutsideSpans(document, r.ClauseText, consumed)
		if idx < 0 {
			summary.Warnings = append(summary.Warnings, Warning{
				FindingID: r.FindingID,
				Reason:    "original clause not found in document",
			})
			continue
		}
		inserted := markOpen + r.BalancedClause + markClose
		document = document[:idx] + inserted + document[idx+len(r.ClauseText):]
		shift := len(inserted) - len(r.ClauseText)
		for i := range consumed {
			if consumed[i].start >= idx {
				consumed[i].start += shift
				consumed[i].end += shift
			}
		}
		consumed = append(consumed, span{start: idx, end: idx + len(inserted)})
		sort.Slice(consumed, func(i, j int) bool { return consumed[i].start < consumed[j].start })
		summary.Applied++
	}
	return document, summary
}

// indexOutsideSpans finds the first occurrence of needle in doc that does not
// overlap any of the given spans.
func indexOutsideSpans(doc, needle string, spans []span) int {
	from := 0
	for from <= len(doc)-len(needle) {
		rel := strings.Index(doc[from:], needle)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		end := idx + len(needle)
		overlapped := false
		for _, s := range spans {
			if idx < s.end && end > s.start {
				overlapped = true
				if s.end > from {
					from = s.end
				}
				break
			}
		}
		if !overlapped {
			return idx
		}
		if from <= idx {
			from = idx + 1
		}
	}
	return -1
}
