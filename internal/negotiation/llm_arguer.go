package negotiation

import (
	"context"

	"nyaya/engine/internal/annotation"
	"nyaya/engine/internal/llm"
)

// ChatClient is the minimal model interface an LLM-backed arguer needs.
type ChatClient interface {
	Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error)
}

// LLMArguer generates debate turns and verdicts by prompting a chat model
// with fixed persona instructions and the running transcript.
type LLMArguer struct {
	Client ChatClient
	APIKey string
	Model  string
}

var _ Arguer = (*LLMArguer)(nil)

func (a *LLMArguer) GenerateTurn(ctx context.Context, party Party, finding annotation.Finding, transcript []DebateMessage, round int) (string, error) {
	citation := finding.CitationText
	if citation == annotation.CitationNotFound {
		citation = ""
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(party)},
		{Role: llm.RoleUser, Content: turnPrompt(party, finding.ClauseText, finding.SuggestionText, citation, transcript, round)},
	}
	return a.Client.Chat(ctx, a.APIKey, a.Model, messages)
}

func (a *LLMArguer) GenerateVerdict(ctx context.Context, finding annotation.Finding, transcript []DebateMessage) (Verdict, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: judgeSystem},
		{Role: llm.RoleUser, Content: verdictPrompt(finding.ClauseText, finding.SuggestionText, transcript)},
	}
	raw, err := a.Client.Chat(ctx, a.APIKey, a.Model, messages)
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(raw), nil
}
