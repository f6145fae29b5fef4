package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nyaya/engine/internal/llm"
)

// fakeGemini is a deterministic offline provider, enabled with
// NYAYA_FAKE_GEMINI=1 for UI development and smoke tests. It recognizes the
// debate personas by their system instructions and replies in character; the
// judge reply reuses the suggested change from the prompt as the balanced
// clause.
type fakeGemini struct {
	mu    sync.Mutex
	calls int
}

func newFakeGemini() *fakeGemini {
	return &fakeGemini{}
}

func (f *fakeGemini) ValidateKey(_ context.Context, _ string) error {
	return nil
}

func (f *fakeGemini) Chat(_ context.Context, _, _ string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	system := ""
	prompt := ""
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = msg.Content
		case llm.RoleUser:
			prompt = msg.Content
		}
	}
	switch {
	case strings.Contains(system, "neutral Judge"):
		clause := quotedField(prompt, `Suggested change: "`)
		if clause == "" {
			clause = "The parties shall negotiate revised terms in good faith."
		}
		return "Party B's safeguard addresses a real imbalance without gutting the clause.\n---\n" + clause, nil
	case strings.Contains(system, "Party A"):
		return fmt.Sprintf("The clause allocates risk deliberately and should stand as written (turn %d).", call), nil
	case strings.Contains(system, "Party B"):
		return fmt.Sprintf("The clause is one-sided; the suggested safeguard is a reasonable correction (turn %d).", call), nil
	default:
		return fmt.Sprintf("Fake reply %d.", call), nil
	}
}

// quotedField extracts the quoted value following marker in text.
func quotedField(text, marker string) string {
	start := strings.Index(text, marker)
	if start < 0 {
		return ""
	}
	rest := text[start+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
