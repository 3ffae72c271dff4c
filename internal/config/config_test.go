package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  metrics_addr: ":9090"
  log_level: info
backend:
  base_url: "http://localhost:8000"
storage:
  driver: memory
languages:
  - code: fr
    name: French
    character:
      id: amelie
      voice_id: fr-1
      personality: "A cheerful Parisian barista."
    difficulty_scaling:
      - english_percent: 80
        target_percent: 20
        grammar_focus: greetings
      - english_percent: 60
        target_percent: 40
        grammar_focus: present tense
    scenarios:
      - id: cafe
        title: "At the Café"
        greetings: ["Bonjour! Welcome to my café."]
        objectives: ["Order a drink"]
        reward_xp: 50
      - id: market
        title: "At the Market"
        greetings: ["Bonjour! Looking for fresh produce?"]
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(cfg.Languages); got != 1 {
		t.Fatalf("expected 1 language, got %d", got)
	}
	fr := cfg.Language("fr")
	if fr == nil {
		t.Fatal("expected language fr to be present")
	}
	if fr.Scenario("cafe") == nil {
		t.Error("expected scenario cafe to be present")
	}
	if fr.Scenario("castle") != nil {
		t.Error("expected scenario castle to be absent")
	}

	// Defaults should be applied.
	if cfg.Backend.Timeout != DefaultBackendTimeout {
		t.Errorf("backend timeout = %v, want default %v", cfg.Backend.Timeout, DefaultBackendTimeout)
	}
	if cfg.Voice.CacheSize != DefaultCacheSize {
		t.Errorf("cache size = %d, want default %d", cfg.Voice.CacheSize, DefaultCacheSize)
	}
	if cfg.Voice.MinRecordingTime != 500*time.Millisecond {
		t.Errorf("min recording time = %v, want 500ms", cfg.Voice.MinRecordingTime)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("serverr:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: "log_level",
		},
		{
			name: "duplicate language code",
			yaml: `
languages:
  - code: fr
    name: French
    character: {id: a}
    scenarios: [{id: s0, greetings: ["hi"]}]
  - code: fr
    name: French again
    character: {id: b}
    scenarios: [{id: s0, greetings: ["hi"]}]
`,
			want: "duplicate",
		},
		{
			name: "scenario without greeting",
			yaml: `
languages:
  - code: es
    name: Spanish
    character: {id: c}
    scenarios: [{id: s0}]
`,
			want: "greetings",
		},
		{
			name: "postgres without dsn",
			yaml: "storage:\n  driver: postgres\n",
			want: "postgres_dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDifficulty_Clamping(t *testing.T) {
	lang := LanguageConfig{
		DifficultyScaling: []DifficultyLevel{
			{EnglishPercent: 80, TargetPercent: 20, GrammarFocus: "greetings"},
			{EnglishPercent: 60, TargetPercent: 40, GrammarFocus: "present tense"},
		},
	}

	if got := lang.Difficulty(1).GrammarFocus; got != "greetings" {
		t.Errorf("level 1 focus = %q, want greetings", got)
	}
	// Beyond the curve clamps to the last entry.
	if got := lang.Difficulty(5).GrammarFocus; got != "present tense" {
		t.Errorf("level 5 focus = %q, want present tense", got)
	}
	// Below the curve clamps to the first entry.
	if got := lang.Difficulty(0).GrammarFocus; got != "greetings" {
		t.Errorf("level 0 focus = %q, want greetings", got)
	}

	var empty LanguageConfig
	if got := empty.Difficulty(3); got.TargetPercent != 20 {
		t.Errorf("empty curve fallback target = %d, want 20", got.TargetPercent)
	}
}
