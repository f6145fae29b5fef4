package draft

import "testing"

func TestTextDiffMarksReplacedClause(t *testing.T) {
	before := "Preamble.\nThe Vendor may terminate at will.\nClosing.\n"
	after := "Preamble.\n<mark data-negotiated=\"accepted\">The Vendor shall give 30 days notice.</mark>\nClosing.\n"
	hunks := TextDiff(before, after)
	if len(hunks) != 1 {
		t.Fatalf("expected one hunk, got %d", len(hunks))
	}
	var added, removed, context int
	for _, line := range hunks[0].Lines {
		switch line.Type {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		case LineContext:
			context++
		}
	}
	if added != 1 || removed != 1 || context != 2 {
		t.Fatalf("unexpected diff shape: added=%d removed=%d context=%d", added, removed, context)
	}
}

func TestTextDiffWithLimitTruncates(t *testing.T) {
	hunks, truncated := TextDiffWithLimit("a\nb\nc\n", "a\nx\nc\n", 2)
	if !truncated || hunks != nil {
		t.Fatalf("expected truncation, got hunks=%v truncated=%v", hunks, truncated)
	}
	hunks, truncated = TextDiffWithLimit("a\nb\n", "a\nx\n", 100)
	if truncated || len(hunks) == 0 {
		t.Fatalf("small diff should not truncate")
	}
}
