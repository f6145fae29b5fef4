package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/llm"
	"nyaya/engine/internal/logging"
	"nyaya/engine/internal/settings"
)

func (e *Engine) ProvidersGetStatus(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	settingsData, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	key, errInfo := e.providerKey(ProviderGoogle)
	if errInfo != nil {
		return nil, errInfo
	}
	entry := settingsData.Providers[ProviderGoogle]
	status := []map[string]any{
		{
			"provider_id":  ProviderGoogle,
			"display_name": "Google",
			"enabled":      entry.Enabled,
			"configured":   strings.TrimSpace(key) != "",
			"models":       []string{settingsData.DefaultModelID},
		},
	}
	return map[string]any{"providers": status}, nil
}

func (e *Engine) ProvidersSetApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
		APIKey     string `json:"api_key"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	e.logger.Debug("providers.set_api_key", "provider_id", req.ProviderID, "api_key", logging.RedactValue(req.APIKey))
	if req.ProviderID != ProviderGoogle {
		return nil, withProviderID(errinfo.ValidationFailed(errinfo.PhaseSettings, "unsupported provider"), req.ProviderID)
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, withProviderID(errinfo.ValidationFailed(errinfo.PhaseSettings, "api key is empty"), req.ProviderID)
	}
	if err := e.secrets.SetGoogleKey(strings.TrimSpace(req.APIKey)); err != nil {
		return nil, withProviderID(errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error()), req.ProviderID)
	}
	return map[string]any{}, nil
}

func (e *Engine) ProvidersClearApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if err := e.secrets.ClearProviderKey(req.ProviderID); err != nil {
		return nil, withProviderID(errinfo.ValidationFailed(errinfo.PhaseSettings, err.Error()), req.ProviderID)
	}
	return map[string]any{}, nil
}

func (e *Engine) ProvidersValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	client, errInfo := e.clientForProvider(req.ProviderID)
	if errInfo != nil {
		return nil, errInfo
	}
	key, errInfo := e.providerKey(req.ProviderID)
	if errInfo != nil {
		return nil, errInfo
	}
	if strings.TrimSpace(key) == "" {
		return nil, withProviderID(errinfo.ProviderNotConfigured(errinfo.PhaseSettings), req.ProviderID)
	}
	if err := client.ValidateKey(ctx, key); err != nil {
		return nil, withProviderID(validationErrorInfo(err), req.ProviderID)
	}
	return map[string]any{"ok": true}, nil
}

func validationErrorInfo(err error) *errinfo.ErrorInfo {
	switch {
	case errors.Is(err, llm.ErrUnauthorized):
		return errinfo.ProviderAuthFailed(errinfo.PhaseSettings)
	case errors.Is(err, llm.ErrEgressBlocked):
		return errinfo.NetworkUnavailable(errinfo.PhaseSettings, err.Error())
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrRateLimited):
		return errinfo.ProviderUnavailable(errinfo.PhaseSettings, err.Error())
	default:
		return errinfo.TransportFailed(errinfo.PhaseSettings, err.Error())
	}
}

func (e *Engine) ProvidersSetEnabled(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
		Enabled    bool   `json:"enabled"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if _, errInfo := e.clientForProvider(req.ProviderID); errInfo != nil {
		return nil, errInfo
	}
	if _, err := e.settings.Update(func(s *settings.Settings) {
		entry := s.Providers[req.ProviderID]
		entry.Enabled = req.Enabled
		s.Providers[req.ProviderID] = entry
	}); err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	return map[string]any{}, nil
}
