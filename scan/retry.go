package scan

import (
	"fmt"

	"github.com/hb9tf/ssbscan/probe"
)

// Action is the next step for a candidate after one probe attempt.
type Action int

const (
	// ActionAdvance moves on to the next candidate; the attempt
	// concluded (detection or confirmed no-signal).
	ActionAdvance Action = iota
	// ActionRetry re-probes the same candidate.
	ActionRetry
	// ActionRecordMiss gives up on the candidate but keeps scanning.
	ActionRecordMiss
	// ActionFail aborts the whole session.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionRetry:
		return "retry"
	case ActionRecordMiss:
		return "record miss"
	case ActionFail:
		return "fail"
	default:
		return fmt.Sprintf("unknown action %d", int(a))
	}
}

// NextAction decides what to do with a candidate given the outcome of
// the latest probe attempt and how many attempts remain. Pure; the
// session loops feed it every classified outcome.
func NextAction(kind probe.OutcomeKind, attemptsLeft int) Action {
	switch kind {
	case probe.Success, probe.NoSignal:
		return ActionAdvance
	}
	if !kind.Retryable() {
		return ActionFail
	}
	if attemptsLeft > 0 {
		return ActionRetry
	}
	return ActionRecordMiss
}
