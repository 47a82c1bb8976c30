package scoring

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	raw := `
questions:
  - key: budget
    prompt: "Budget?"
    priority: 2
    options:
      - value: high
        points: 5
        matches: ["plenty"]
  - key: timeline
    prompt: "When?"
    priority: 1
    options:
      - value: now
        points: 3
        matches: ["now"]
qualifying_threshold: 6
tiers:
  - name: cold
    min: 0
  - name: hot
    min: 6
`
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// questions come back sorted by priority
	if cfg.Questions[0].Key != "timeline" || cfg.Questions[1].Key != "budget" {
		t.Errorf("questions not priority sorted: %s, %s", cfg.Questions[0].Key, cfg.Questions[1].Key)
	}
	// tiers come back sorted by descending minimum
	if cfg.Tiers[0].Name != "hot" {
		t.Errorf("tiers not sorted descending, first = %s", cfg.Tiers[0].Name)
	}
	if cfg.QualifyingThreshold != 6 {
		t.Errorf("threshold = %d, want 6", cfg.QualifyingThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no questions", "questions: []\ntiers: [{name: cold, min: 0}]\n"},
		{"duplicate keys", `
questions:
  - {key: budget, priority: 1, options: [{value: a, points: 1}]}
  - {key: budget, priority: 2, options: [{value: b, points: 1}]}
tiers: [{name: cold, min: 0}]
`},
		{"no tiers", `
questions:
  - {key: budget, priority: 1, options: [{value: a, points: 1}]}
tiers: []
`},
		{"tiers miss negative range", `
questions:
  - {key: authority, priority: 1, options: [{value: "no", points: -1}]}
tiers: [{name: cold, min: 0}]
`},
	}

	for _, tc := range tests {
		path := filepath.Join(t.TempDir(), "scoring.yaml")
		if err := os.WriteFile(path, []byte(tc.raw), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load accepted invalid config", tc.name)
		}
	}
}
