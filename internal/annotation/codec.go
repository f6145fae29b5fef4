// Package annotation converts between marker-tagged contract text and a
// structured list of risk findings.
//
// The upstream analysis pipeline emits documents where flagged clauses are
// wrapped in level tags (-hr-, -mr-, -lr-), optionally followed by a
// suggestion block (-sg-) and a legal citation block (-ipc-). Decode strips
// those markers into Finding records and replaces each recognized span with a
// neutral inline <mark> element carrying the finding id and level, which the
// renderer correlates back to the findings list.
package annotation

import (
	"fmt"
	"strings"
)

// Level classifies the severity of a flagged clause.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// CitationNotFound is the sentinel the retrieval stage writes when no statute
// could be located for a clause. It is distinct from an absent citation block,
// which decodes to the empty string.
const CitationNotFound = "not found"

// Finding is one risk record extracted from an annotated document. Findings
// are immutable after decode; their ids are stable for repeated decodes of the
// same input.
type Finding struct {
	ID             string `json:"id"`
	Level          Level  `json:"level"`
	ClauseText     string `json:"clause_text"`
	SuggestionText string `json:"suggestion_text"`
	CitationText   string `json:"citation_text"`
}

const (
	tagHigh     = "-hr-"
	tagMedium   = "-mr-"
	tagLow      = "-lr-"
	tagSuggest  = "-sg-"
	tagCitation = "-ipc-"
)

var levelTags = []struct {
	tag   string
	level Level
}{
	{tagHigh, LevelHigh},
	{tagMedium, LevelMedium},
	{tagLow, LevelLow},
}

// Decode scans an annotated document left to right and extracts findings.
// It returns the clean document, where every recognized risk span is replaced
// by a neutral inline marker, and the findings in document order with ids
// risk-0, risk-1, and so on.
//
// Malformed spans (an unterminated level tag, for example) are not an error:
// the literal tag text is kept in the clean document and scanning continues
// after it, so every character of the input ends up either in the clean text
// or inside a finding. Overlapping or nested tags resolve first-match-wins;
// whatever is left over is treated as plain text.
//
// Decoding consumes markers. Running Decode on its own clean output yields
// the same document and no findings, because the clean document is a
// different artifact from the raw annotated one.
func Decode(document string) (string, []Finding) {
	var clean strings.Builder
	clean.Grow(len(document))
	var findings []Finding

	pos := 0
	for pos < len(document) {
		openIdx, tag, level := nextLevelTag(document, pos)
		if openIdx < 0 {
			clean.WriteString(document[pos:])
			break
		}
		clean.WriteString(document[pos:openIdx])

		contentStart := openIdx + len(tag)
		closeRel := strings.Index(document[contentStart:], tag)
		if closeRel < 0 {
			// Unterminated level tag: emit it verbatim and keep scanning
			// right after it so the rest of the document is still covered.
			clean.WriteString(tag)
			pos = contentStart
			continue
		}
		clauseText := document[contentStart : contentStart+closeRel]
		pos = contentStart + closeRel + len(tag)

		suggestion, next := consumeBlock(document, pos, tagSuggest)
		pos = next
		citation, next := consumeBlock(document, pos, tagCitation)
		pos = next

		id := fmt.Sprintf("risk-%d", len(findings))
		findings = append(findings, Finding{
			ID:             id,
			Level:          level,
			ClauseText:     clauseText,
			SuggestionText: suggestion,
			CitationText:   citation,
		})
		clean.WriteString(inlineMarker(id, level, clauseText))
	}

	return clean.String(), findings
}

// nextLevelTag finds the earliest level tag at or after pos. Returns -1 when
// no tag remains.
func nextLevelTag(document string, pos int) (int, string, Level) {
	best := -1
	var bestTag string
	var bestLevel Level
	for _, candidate := range levelTags {
		idx := strings.Index(document[pos:], candidate.tag)
		if idx < 0 {
			continue
		}
		abs := pos + idx
		if best < 0 || abs < best {
			best = abs
			bestTag = candidate.tag
			bestLevel = candidate.level
		}
	}
	return best, bestTag, bestLevel
}

// consumeBlock consumes an optional delimited block (suggestion or citation)
// that may follow a risk span after whitespace. It returns the block's inner
// text and the new scan position. A missing or unterminated block consumes
// nothing, so the text stays in the document as-is.
func consumeBlock(document string, pos int, tag string) (string, int) {
	cursor := pos
	for cursor < len(document) && isSpace(document[cursor]) {
		cursor++
	}
	if !strings.HasPrefix(document[cursor:], tag) {
		return "", pos
	}
	contentStart := cursor + len(tag)
	closeRel := strings.Index(document[contentStart:], tag)
	if closeRel < 0 {
		return "", pos
	}
	content := document[contentStart : contentStart+closeRel]
	return content, contentStart + closeRel + len(tag)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

const (
	markerPrefix = `<mark data-risk-id="`
	markerClose  = `</mark>`
)

func inlineMarker(id string, level Level, clauseText string) string {
	return fmt.Sprintf(`%s%s" data-level="%s">%s%s`, markerPrefix, id, level, clauseText, markerClose)
}

// StripMarkers removes the neutral inline markers Decode inserted, yielding
// the plain pre-negotiation document text. Only markers produced by Decode
// are removed; any other <mark> element in the source text is left alone.
func StripMarkers(clean string) string {
	var out strings.Builder
	out.Grow(len(clean))
	pos := 0
	for pos < len(clean) {
		start := strings.Index(clean[pos:], markerPrefix)
		if start < 0 {
			out.WriteString(clean[pos:])
			break
		}
		start += pos
		openEnd := strings.Index(clean[start:], ">")
		if openEnd < 0 {
			out.WriteString(clean[pos:])
			break
		}
		contentStart := start + openEnd + 1
		closeRel := strings.Index(clean[contentStart:], markerClose)
		if closeRel < 0 {
			out.WriteString(clean[pos:])
			break
		}
		out.WriteString(clean[pos:start])
		out.WriteString(clean[contentStart : contentStart+closeRel])
		pos = contentStart + closeRel + len(markerClose)
	}
	return out.String()
}
