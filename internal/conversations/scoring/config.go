// Package scoring maps collected qualification evidence to a numeric score
// and a tier. Pure computation; weights and thresholds come from
// configuration, not code.
package scoring

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AnswerOption is one recognizable answer for a question, with the phrases
// that map onto it and the points it contributes.
type AnswerOption struct {
	Value   string   `yaml:"value"`
	Points  int      `yaml:"points"`
	Matches []string `yaml:"matches"`
}

// Question is one qualification question. Priority orders which question is
// asked next; lower numbers go first.
type Question struct {
	Key      string         `yaml:"key"`
	Prompt   string         `yaml:"prompt"`
	Priority int            `yaml:"priority"`
	Options  []AnswerOption `yaml:"options"`
}

// TierBound names a tier and the minimum score that reaches it.
type TierBound struct {
	Name string `yaml:"name"`
	Min  int    `yaml:"min"`
}

// Config is the full scoring configuration.
type Config struct {
	Questions           []Question  `yaml:"questions"`
	QualifyingThreshold int         `yaml:"qualifying_threshold"`
	Tiers               []TierBound `yaml:"tiers"`
}

// Load reads a scoring configuration from a YAML file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse scoring config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

// Default returns the built-in scoring configuration used when no file is
// provided.
func Default() *Config {
	cfg := &Config{
		Questions: []Question{
			{
				Key:      "budget",
				Prompt:   "What budget range are you working with for this project?",
				Priority: 1,
				Options: []AnswerOption{
					{Value: "over_10k", Points: 4, Matches: []string{"over 10", "10k+", "more than 10", "above 10"}},
					{Value: "1k_to_10k", Points: 3, Matches: []string{"1k", "5k", "few thousand", "between 1", "under 10"}},
					{Value: "under_1k", Points: 1, Matches: []string{"under 1", "less than 1", "small budget", "hundred"}},
				},
			},
			{
				Key:      "timeline",
				Prompt:   "When are you looking to get started?",
				Priority: 2,
				Options: []AnswerOption{
					{Value: "now", Points: 3, Matches: []string{"now", "asap", "immediately", "this week", "right away"}},
					{Value: "soon", Points: 2, Matches: []string{"soon", "month", "few weeks", "quarter"}},
					{Value: "later", Points: 1, Matches: []string{"later", "next year", "someday", "not sure when", "eventually"}},
				},
			},
			{
				Key:      "authority",
				Prompt:   "Are you the person who makes the final decision on this?",
				Priority: 3,
				Options: []AnswerOption{
					{Value: "yes", Points: 2, Matches: []string{"yes", "i am", "i decide", "my call", "sole"}},
					{Value: "shared", Points: 1, Matches: []string{"we", "partner", "together", "board", "committee", "spouse"}},
					{Value: "no", Points: -1, Matches: []string{"no", "someone else", "not me", "my boss"}},
				},
			},
			{
				Key:      "need",
				Prompt:   "How urgent is solving this problem for you?",
				Priority: 4,
				Options: []AnswerOption{
					{Value: "strong", Points: 3, Matches: []string{"urgent", "critical", "really need", "must", "big problem"}},
					{Value: "some", Points: 1, Matches: []string{"would help", "nice to have", "interested", "curious"}},
					{Value: "none", Points: 0, Matches: []string{"just looking", "browsing", "no need"}},
				},
			},
		},
		QualifyingThreshold: 8,
		Tiers: []TierBound{
			{Name: "cold", Min: -5},
			{Name: "warm", Min: 4},
			{Name: "hot", Min: 8},
		},
	}
	cfg.normalize()
	return cfg
}

// Validate checks structural soundness: at least one question, unique keys,
// and tiers covering the low end of the score range.
func (c *Config) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("scoring config: no questions defined")
	}

	seen := make(map[string]bool, len(c.Questions))
	for _, q := range c.Questions {
		if q.Key == "" {
			return fmt.Errorf("scoring config: question with empty key")
		}
		if seen[q.Key] {
			return fmt.Errorf("scoring config: duplicate question key %q", q.Key)
		}
		seen[q.Key] = true
		if len(q.Options) == 0 {
			return fmt.Errorf("scoring config: question %q has no options", q.Key)
		}
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("scoring config: no tiers defined")
	}

	lowest := c.Tiers[0].Min
	for _, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("scoring config: tier with empty name")
		}
		if t.Min < lowest {
			lowest = t.Min
		}
	}
	if lowest > minPossibleScore(c) {
		return fmt.Errorf("scoring config: tiers do not cover minimum possible score %d", minPossibleScore(c))
	}

	return nil
}

// normalize sorts questions by priority and tiers by descending minimum so
// lookup code can rely on order.
func (c *Config) normalize() {
	sort.SliceStable(c.Questions, func(i, j int) bool {
		return c.Questions[i].Priority < c.Questions[j].Priority
	})
	sort.SliceStable(c.Tiers, func(i, j int) bool {
		return c.Tiers[i].Min > c.Tiers[j].Min
	})
}

func minPossibleScore(c *Config) int {
	total := 0
	for _, q := range c.Questions {
		lowest := 0
		for _, opt := range q.Options {
			if opt.Points < lowest {
				lowest = opt.Points
			}
		}
		total += lowest
	}
	return total
}
