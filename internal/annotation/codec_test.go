package annotation

import (
	"reflect"
	"strings"
	"testing"
)

func TestDecodeSingleHighRiskSpan(t *testing.T) {
	doc := `Preamble. -hr-The Vendor may terminate at will.-hr- -sg-Require 30 days notice-sg- -ipc-Indian Contract Act 1872, Sec 14-ipc- Tail.`
	clean, findings := Decode(doc)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.ID != "risk-0" {
		t.Fatalf("expected id risk-0, got %q", f.ID)
	}
	if f.Level != LevelHigh {
		t.Fatalf("expected high level, got %q", f.Level)
	}
	if f.ClauseText != "The Vendor may terminate at will." {
		t.Fatalf("unexpected clause: %q", f.ClauseText)
	}
	if f.SuggestionText != "Require 30 days notice" {
		t.Fatalf("unexpected suggestion: %q", f.SuggestionText)
	}
	if f.CitationText != "Indian Contract Act 1872, Sec 14" {
		t.Fatalf("unexpected citation: %q", f.CitationText)
	}
	want := `Preamble. <mark data-risk-id="risk-0" data-level="high">The Vendor may terminate at will.</mark> Tail.`
	if clean != want {
		t.Fatalf("clean mismatch:\n got %q\nwant %q", clean, want)
	}
}

func TestDecodeAssignsIDsInDocumentOrder(t *testing.T) {
	doc := "-lr-first-lr- middle -mr-second-mr- end -hr-third-hr-"
	_, findings := Decode(doc)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(findings))
	}
	wantIDs := []string{"risk-0", "risk-1", "risk-2"}
	wantLevels := []Level{LevelLow, LevelMedium, LevelHigh}
	for i, f := range findings {
		if f.ID != wantIDs[i] {
			t.Fatalf("finding %d: expected id %s, got %s", i, wantIDs[i], f.ID)
		}
		if f.Level != wantLevels[i] {
			t.Fatalf("finding %d: expected level %s, got %s", i, wantLevels[i], f.Level)
		}
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	doc := "-hr-a-hr- x -mr-b-mr- -sg-s-sg- y -lr-c-lr- -ipc-not found-ipc-"
	clean1, findings1 := Decode(doc)
	clean2, findings2 := Decode(doc)
	if clean1 != clean2 {
		t.Fatalf("clean output differs between decodes")
	}
	if !reflect.DeepEqual(findings1, findings2) {
		t.Fatalf("findings differ between decodes:\n%v\n%v", findings1, findings2)
	}
}

func TestDecodeTotalCoverage(t *testing.T) {
	doc := "Alpha -hr-clause one-hr- -sg-fix one-sg- bravo -mr-clause two-mr- charlie -lr-dangling"
	clean, findings := Decode(doc)
	// Every input character must land either in the clean text or inside a
	// finding's clause/suggestion/citation content.
	for _, fragment := range []string{"Alpha ", " bravo ", " charlie ", "-lr-dangling"} {
		if !strings.Contains(clean, fragment) {
			t.Fatalf("clean text lost fragment %q: %q", fragment, clean)
		}
	}
	if findings[0].ClauseText != "clause one" || findings[0].SuggestionText != "fix one" {
		t.Fatalf("finding 0 content lost: %+v", findings[0])
	}
	if findings[1].ClauseText != "clause two" {
		t.Fatalf("finding 1 content lost: %+v", findings[1])
	}
}

func TestDecodeUnterminatedTagKeptVerbatim(t *testing.T) {
	doc := "Before -hr-never closed and more text."
	clean, findings := Decode(doc)
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
	if clean != doc {
		t.Fatalf("expected document unchanged, got %q", clean)
	}
}

func TestDecodeOverlappingTagsFirstMatchWins(t *testing.T) {
	// The -hr- span closes first; the stray -mr- inside it belongs to the
	// clause text, and the trailing -mr- is left as plain text because it
	// never finds a partner.
	doc := "-hr-A -mr-B-hr- C-mr-"
	clean, findings := Decode(doc)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Level != LevelHigh {
		t.Fatalf("expected high level, got %s", findings[0].Level)
	}
	if findings[0].ClauseText != "A -mr-B" {
		t.Fatalf("unexpected clause: %q", findings[0].ClauseText)
	}
	if !strings.HasSuffix(clean, " C-mr-") {
		t.Fatalf("expected leftover -mr- kept as plain text, got %q", clean)
	}
}

func TestDecodeEmptyBlocksProduceEmptyFields(t *testing.T) {
	doc := "-mr-clause-mr- -sg--sg- -ipc--ipc-"
	_, findings := Decode(doc)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].SuggestionText != "" || findings[0].CitationText != "" {
		t.Fatalf("expected empty suggestion and citation, got %+v", findings[0])
	}
}

func TestDecodeCitationNotFoundSentinel(t *testing.T) {
	doc := "-lr-clause-lr- -ipc-not found-ipc-"
	_, findings := Decode(doc)
	if findings[0].CitationText != CitationNotFound {
		t.Fatalf("expected sentinel %q, got %q", CitationNotFound, findings[0].CitationText)
	}
	if findings[0].SuggestionText != "" {
		t.Fatalf("expected absent suggestion to decode empty, got %q", findings[0].SuggestionText)
	}
}

func TestDecodeSuggestionWithoutCitation(t *testing.T) {
	doc := "-hr-clause-hr-\n-sg-better clause-sg-\nrest"
	clean, findings := Decode(doc)
	if findings[0].SuggestionText != "better clause" {
		t.Fatalf("unexpected suggestion: %q", findings[0].SuggestionText)
	}
	if !strings.HasSuffix(clean, "\nrest") {
		t.Fatalf("trailing text lost: %q", clean)
	}
}

func TestDecodeUnterminatedSuggestionLeftInPlace(t *testing.T) {
	doc := "-hr-clause-hr- -sg-no close"
	clean, findings := Decode(doc)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].SuggestionText != "" {
		t.Fatalf("expected empty suggestion, got %q", findings[0].SuggestionText)
	}
	if !strings.HasSuffix(clean, " -sg-no close") {
		t.Fatalf("unterminated suggestion should stay literal: %q", clean)
	}
}

func TestDecodeCleanOutputIsStable(t *testing.T) {
	doc := "Intro -hr-risky-hr- -sg-safer-sg- outro"
	clean, findings := Decode(doc)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	again, more := Decode(clean)
	if len(more) != 0 {
		t.Fatalf("re-decode of clean output found %d findings", len(more))
	}
	if again != clean {
		t.Fatalf("re-decode changed the clean document:\n got %q\nwant %q", again, clean)
	}
}

func TestStripMarkers(t *testing.T) {
	doc := "Intro -hr-risky clause-hr- outro"
	clean, _ := Decode(doc)
	plain := StripMarkers(clean)
	if plain != "Intro risky clause outro" {
		t.Fatalf("unexpected plain document: %q", plain)
	}
}

func TestStripMarkersLeavesForeignMarksAlone(t *testing.T) {
	clean := `keep <mark data-negotiated="accepted">this</mark> intact`
	if got := StripMarkers(clean); got != clean {
		t.Fatalf("foreign mark was altered: %q", got)
	}
}

func TestSummarize(t *testing.T) {
	findings := []Finding{
		{Level: LevelHigh},
		{Level: LevelHigh},
		{Level: LevelMedium},
		{Level: LevelLow},
	}
	summary := Summarize(findings)
	if summary.HighCount != 2 || summary.MediumCount != 1 || summary.LowCount != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.Total != 4 {
		t.Fatalf("unexpected total: %d", summary.Total)
	}
	// (70+70+40+10)/4 = 47
	if summary.Score != 47 {
		t.Fatalf("unexpected score: %d", summary.Score)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.Total != 0 || summary.Score != 0 {
		t.Fatalf("unexpected empty summary: %+v", summary)
	}
}
