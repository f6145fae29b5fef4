// Package engine hosts the contract review engine behind the RPC surface:
// document sessions, risk decoding, debate negotiation, and final draft
// assembly.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nyaya/engine/internal/appdirs"
	"nyaya/engine/internal/envutil"
	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/gemini"
	"nyaya/engine/internal/llm"
	"nyaya/engine/internal/logging"
	"nyaya/engine/internal/secrets"
	"nyaya/engine/internal/settings"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

const ProviderGoogle = settings.ProviderGoogle

// Notifier pushes a server-initiated notification to the consumer.
type Notifier func(method string, params any)

// LLMClient is the provider capability the engine needs: key validation and
// a single-turn chat completion.
type LLMClient interface {
	ValidateKey(ctx context.Context, apiKey string) error
	Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error)
}

type Engine struct {
	dataDir   string
	settings  *settings.Store
	secrets   *secrets.Store
	providers map[string]LLMClient
	notify    Notifier
	logger    *slog.Logger

	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	newSessionID func() string

	sessionMu sync.Mutex
	sessions  map[string]*documentSession
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProviderClient overrides one provider's client. Tests use this to point
// at an httptest server or an in-process fake.
func WithProviderClient(providerID string, client LLMClient) Option {
	return func(e *Engine) {
		if e.providers == nil {
			e.providers = make(map[string]LLMClient)
		}
		e.providers[providerID] = client
	}
}

// WithClock overrides time and sleep behavior for the negotiation retry loop.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	settingsPath := filepath.Join(dataDir, "settings.json")
	secretsPath := filepath.Join(dataDir, "secrets.enc")
	masterKeyPath := filepath.Join(dataDir, "master.key")
	if engine.providers == nil {
		engine.providers = map[string]LLMClient{
			ProviderGoogle: gemini.NewClient(),
		}
		if envutil.Bool("NYAYA_FAKE_GEMINI") {
			fake := newFakeGemini()
			for id := range engine.providers {
				engine.providers[id] = fake
			}
		}
	}
	engine.dataDir = dataDir
	engine.settings = settings.NewStore(settingsPath)
	engine.secrets = secrets.NewStore(secretsPath, masterKeyPath)
	engine.sessions = make(map[string]*documentSession)
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.newSessionID == nil {
		engine.newSessionID = uuid.NewString
	}
	engine.logger.Debug("engine.init", "data_dir", dataDir, "fake_gemini", envutil.Bool("NYAYA_FAKE_GEMINI"))
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

func (e *Engine) sendNotification(method string, params any) {
	if e.notify == nil {
		return
	}
	e.notify(method, params)
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
	}, nil
}

func withProviderID(info *errinfo.ErrorInfo, providerID string) *errinfo.ErrorInfo {
	if info == nil {
		return nil
	}
	copied := *info
	copied.ProviderID = providerID
	return &copied
}

func (e *Engine) clientForProvider(providerID string) (LLMClient, *errinfo.ErrorInfo) {
	client, ok := e.providers[providerID]
	if !ok {
		return nil, withProviderID(errinfo.ValidationFailed(errinfo.PhaseSettings, "unsupported provider"), providerID)
	}
	return client, nil
}

func (e *Engine) providerKey(providerID string) (string, *errinfo.ErrorInfo) {
	switch providerID {
	case ProviderGoogle:
		key, err := e.secrets.GetGoogleKey()
		if err != nil {
			return "", withProviderID(errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error()), providerID)
		}
		return key, nil
	default:
		return "", withProviderID(errinfo.ValidationFailed(errinfo.PhaseSettings, "unsupported provider"), providerID)
	}
}

// modelName strips the provider prefix from a model id, yielding the name the
// provider API expects.
func modelName(modelID string) string {
	if idx := strings.Index(modelID, ":"); idx >= 0 {
		return modelID[idx+1:]
	}
	return modelID
}
