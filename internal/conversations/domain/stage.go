// Package domain provides core business rules for the conversations bounded
// context: the qualification stage machine, signals, and the durable record.
package domain

// Stage is a discrete point in the qualification flow. The set is closed;
// transitions only happen through Next.
type Stage string

const (
	// StageNew is the initial stage before any contact.
	StageNew Stage = "NEW"
	// StageEngaged means first contact has been acknowledged.
	StageEngaged Stage = "ENGAGED"
	// StageQualifying means questions are being asked and answered.
	StageQualifying Stage = "QUALIFYING"
	// StageQualified means all questions answered with a passing score.
	StageQualified Stage = "QUALIFIED"
	// StageDisqualified means all questions answered below the threshold.
	StageDisqualified Stage = "DISQUALIFIED"
	// StageClosed is terminal. Only an explicit reset leaves it.
	StageClosed Stage = "CLOSED"
)

var knownStages = map[Stage]struct{}{
	StageNew:          {},
	StageEngaged:      {},
	StageQualifying:   {},
	StageQualified:    {},
	StageDisqualified: {},
	StageClosed:       {},
}

// IsKnownStage reports whether the value is part of the closed stage set.
func IsKnownStage(stage Stage) bool {
	_, ok := knownStages[stage]
	return ok
}

// IsTerminal reports whether a stage accepts no further message signals.
// Closed conversations only react to an explicit reset.
func IsTerminal(stage Stage) bool {
	return stage == StageClosed
}

// IsOutcome reports whether the stage is a qualification outcome.
func IsOutcome(stage Stage) bool {
	return stage == StageQualified || stage == StageDisqualified
}

// progression orders stages for diagnostics. Outcome stages share a rank.
var progression = map[Stage]int{
	StageNew:          0,
	StageEngaged:      1,
	StageQualifying:   2,
	StageQualified:    3,
	StageDisqualified: 3,
	StageClosed:       4,
}

// Rank returns the stage's position in the qualification progression.
func Rank(stage Stage) int {
	return progression[stage]
}
