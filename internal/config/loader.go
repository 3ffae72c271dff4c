package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when the corresponding field is zero.
const (
	DefaultBaseURL          = "http://localhost:8000"
	DefaultBackendTimeout   = 30 * time.Second
	DefaultCacheSize        = 50
	DefaultMaxRecordingTime = 30 * time.Second
	DefaultMinRecordingTime = 500 * time.Millisecond
)

// MaxDifficultyLevel is the highest difficulty a conversation can reach.
const MaxDifficultyLevel = 5

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for zero-valued tuning fields. It returns a joined error listing
// all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}

	// Storage
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageFile
	}
	if !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: file, memory, postgres", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == StorageFile && cfg.Storage.Path == "" {
		cfg.Storage.Path = "."
	}
	if cfg.Storage.Driver == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.driver is postgres"))
	}

	// Voice defaults
	if cfg.Voice.CacheSize <= 0 {
		cfg.Voice.CacheSize = DefaultCacheSize
	}
	if cfg.Voice.MaxRecordingTime <= 0 {
		cfg.Voice.MaxRecordingTime = DefaultMaxRecordingTime
	}
	if cfg.Voice.MinRecordingTime <= 0 {
		cfg.Voice.MinRecordingTime = DefaultMinRecordingTime
	}

	if len(cfg.Languages) == 0 {
		slog.Warn("no languages configured; there will be nothing to practice")
	}

	// Languages
	codesSeen := make(map[string]int, len(cfg.Languages))
	for i, lang := range cfg.Languages {
		prefix := fmt.Sprintf("languages[%d]", i)
		if lang.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
		} else {
			if prev, ok := codesSeen[lang.Code]; ok {
				errs = append(errs, fmt.Errorf("%s.code %q is a duplicate of languages[%d]", prefix, lang.Code, prev))
			}
			codesSeen[lang.Code] = i
		}
		if lang.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if lang.Character.ID == "" {
			errs = append(errs, fmt.Errorf("%s.character.id is required", prefix))
		}

		if len(lang.DifficultyScaling) > MaxDifficultyLevel {
			errs = append(errs, fmt.Errorf("%s.difficulty_scaling has %d entries; at most %d are used",
				prefix, len(lang.DifficultyScaling), MaxDifficultyLevel))
		}
		for j, d := range lang.DifficultyScaling {
			if d.EnglishPercent < 0 || d.EnglishPercent > 100 || d.TargetPercent < 0 || d.TargetPercent > 100 {
				errs = append(errs, fmt.Errorf("%s.difficulty_scaling[%d] percentages must be in [0, 100]", prefix, j))
			}
		}

		if len(lang.Scenarios) == 0 {
			slog.Warn("language has no scenarios", "code", lang.Code)
		}
		scenarioSeen := make(map[string]int, len(lang.Scenarios))
		for j, sc := range lang.Scenarios {
			sprefix := fmt.Sprintf("%s.scenarios[%d]", prefix, j)
			if sc.ID == "" {
				errs = append(errs, fmt.Errorf("%s.id is required", sprefix))
			} else if prev, ok := scenarioSeen[sc.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of scenarios[%d]", sprefix, sc.ID, prev))
			} else {
				scenarioSeen[sc.ID] = j
			}
			if len(sc.Greetings) == 0 {
				errs = append(errs, fmt.Errorf("%s.greetings must have at least one entry", sprefix))
			}
		}
	}

	return errors.Join(errs...)
}
