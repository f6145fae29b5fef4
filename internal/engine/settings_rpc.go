package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/settings"
)

func (e *Engine) SettingsGetDebateRounds(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	settingsData, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	return map[string]any{"debate_rounds": settingsData.DebateRounds}, nil
}

func (e *Engine) SettingsSetDebateRounds(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		DebateRounds int `json:"debate_rounds"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if req.DebateRounds < settings.MinDebateRounds || req.DebateRounds > settings.MaxDebateRounds {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings,
			fmt.Sprintf("debate_rounds must be between %d and %d", settings.MinDebateRounds, settings.MaxDebateRounds))
	}
	updated, err := e.settings.Update(func(s *settings.Settings) {
		s.DebateRounds = req.DebateRounds
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Debug("settings.debate_rounds", "rounds", updated.DebateRounds)
	return map[string]any{"debate_rounds": updated.DebateRounds}, nil
}
