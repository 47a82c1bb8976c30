package domain

// legalTransitions enumerates every stage move the machine may make. Anything
// outside this table is a bug, not a runtime condition.
var legalTransitions = map[Stage][]Stage{
	StageNew:          {StageEngaged, StageClosed},
	StageEngaged:      {StageQualifying, StageClosed, StageNew},
	StageQualifying:   {StageQualifying, StageQualified, StageDisqualified, StageClosed, StageNew},
	StageQualified:    {StageClosed, StageNew},
	StageDisqualified: {StageClosed, StageNew},
	StageClosed:       {StageNew},
}

// CanTransition reports whether moving from one stage to another is legal.
// Staying put is always legal.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next computes the stage after applying one signal. It is total: every
// stage/signal pair yields a defined next stage.
//
// complete reports whether all required questions are answered after this
// signal; qualified reports whether the recomputed score meets the
// qualifying threshold. Both are ignored outside QUALIFYING.
func Next(current Stage, kind SignalKind, complete, qualified bool) Stage {
	switch kind {
	case SignalReset:
		return StageNew
	case SignalTimeout:
		return StageClosed
	}

	switch current {
	case StageNew:
		return StageEngaged
	case StageEngaged:
		return StageQualifying
	case StageQualifying:
		if !complete {
			return StageQualifying
		}
		if qualified {
			return StageQualified
		}
		return StageDisqualified
	case StageQualified, StageDisqualified:
		return current
	case StageClosed:
		return StageClosed
	default:
		return current
	}
}
