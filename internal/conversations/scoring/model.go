package scoring

import (
	"strings"

	"leadqual_backend/internal/conversations/domain"
)

// Model computes scores and tiers from evidence. Stateless beyond its
// configuration; safe for concurrent use.
type Model struct {
	cfg *Config
}

// NewModel creates a Model from a validated configuration.
func NewModel(cfg *Config) *Model {
	return &Model{cfg: cfg}
}

// Compute maps evidence to a score and tier. Deterministic and total:
// missing keys count as unanswered and contribute zero, unknown values
// contribute zero. Tier is the highest bound whose minimum is at or below
// the score.
func (m *Model) Compute(evidence domain.Evidence) (int, domain.Tier) {
	score := 0
	for _, q := range m.cfg.Questions {
		answer, ok := evidence[q.Key]
		if !ok || answer == domain.AnswerUnparsed {
			continue
		}
		for _, opt := range q.Options {
			if opt.Value == answer {
				score += opt.Points
				break
			}
		}
	}
	return score, m.tierFor(score)
}

func (m *Model) tierFor(score int) domain.Tier {
	for _, t := range m.cfg.Tiers {
		if score >= t.Min {
			return domain.Tier(t.Name)
		}
	}
	// tiers cover the full range after Validate; last one is the floor
	if len(m.cfg.Tiers) > 0 {
		return domain.Tier(m.cfg.Tiers[len(m.cfg.Tiers)-1].Name)
	}
	return ""
}

// Qualified reports whether the score meets the qualifying threshold.
// The threshold is an inclusive lower bound.
func (m *Model) Qualified(score int) bool {
	return score >= m.cfg.QualifyingThreshold
}

// Complete reports whether every required question has an answer recorded.
// Unparsed answers count as answered.
func (m *Model) Complete(evidence domain.Evidence) bool {
	for _, q := range m.cfg.Questions {
		if _, ok := evidence[q.Key]; !ok {
			return false
		}
	}
	return true
}

// NextQuestion returns the key of the highest-priority unanswered question,
// or ok=false when every question is answered.
func (m *Model) NextQuestion(evidence domain.Evidence) (string, bool) {
	for _, q := range m.cfg.Questions {
		if _, ok := evidence[q.Key]; !ok {
			return q.Key, true
		}
	}
	return "", false
}

// Prompt returns the configured prompt text for a question key.
func (m *Model) Prompt(key string) string {
	for _, q := range m.cfg.Questions {
		if q.Key == key {
			return q.Prompt
		}
	}
	return ""
}

// ParseAnswer interprets a free-form reply as an answer to the given
// question. Matching is case-insensitive substring search over the
// configured phrases, checked in option order. Replies that match nothing
// come back as the unparsed value so the turn still counts as answered.
func (m *Model) ParseAnswer(questionKey, payload string) string {
	text := strings.ToLower(strings.TrimSpace(payload))
	if text == "" {
		return domain.AnswerUnparsed
	}

	for _, q := range m.cfg.Questions {
		if q.Key != questionKey {
			continue
		}
		for _, opt := range q.Options {
			if strings.EqualFold(opt.Value, text) {
				return opt.Value
			}
			for _, phrase := range opt.Matches {
				if strings.Contains(text, strings.ToLower(phrase)) {
					return opt.Value
				}
			}
		}
	}

	return domain.AnswerUnparsed
}

// MaxScore returns the highest achievable score under the configuration.
func (m *Model) MaxScore() int {
	total := 0
	for _, q := range m.cfg.Questions {
		best := 0
		for _, opt := range q.Options {
			if opt.Points > best {
				best = opt.Points
			}
		}
		total += best
	}
	return total
}
