package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const schemaVersion = 1

const (
	ProviderGoogle = "google"

	DefaultModelID = "google:gemini-2.5-flash"

	// Debate rounds per finding. The arbitration step runs after the last
	// round regardless.
	DefaultDebateRounds = 3
	MinDebateRounds     = 1
	MaxDebateRounds     = 5
)

type ProviderSettings struct {
	Enabled bool `json:"enabled"`
}

type Settings struct {
	SchemaVersion  int                         `json:"schema_version"`
	Providers      map[string]ProviderSettings `json:"providers"`
	DefaultModelID string                      `json:"default_model_id,omitempty"`
	DebateRounds   int                         `json:"debate_rounds,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion: schemaVersion,
		Providers: map[string]ProviderSettings{
			ProviderGoogle: {Enabled: true},
		},
		DefaultModelID: DefaultModelID,
		DebateRounds:   DefaultDebateRounds,
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if settings.Providers == nil {
		settings.Providers = map[string]ProviderSettings{}
	}
	if _, ok := settings.Providers[ProviderGoogle]; !ok {
		settings.Providers[ProviderGoogle] = ProviderSettings{Enabled: true}
	}
	if settings.DefaultModelID == "" {
		settings.DefaultModelID = DefaultModelID
	}
	settings.DebateRounds = ClampDebateRounds(settings.DebateRounds)
}

// ClampDebateRounds normalizes a round count into the supported range,
// falling back to the default when unset.
func ClampDebateRounds(rounds int) int {
	if rounds == 0 {
		return DefaultDebateRounds
	}
	if rounds < MinDebateRounds {
		return MinDebateRounds
	}
	if rounds > MaxDebateRounds {
		return MaxDebateRounds
	}
	return rounds
}
