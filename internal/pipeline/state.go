package pipeline

import (
	"errors"
	"fmt"
)

// State is the position of a Session in its run.
type State int

// Session states, in order.
const (
	StateIdle State = iota
	StateRowsLoaded
	StateMessagesComposed
	StateVoicesSynthesized
	StateArchived
)

// ErrInvalidTransition is returned when an action is triggered before the
// state it depends on has been reached.
var ErrInvalidTransition = errors.New("invalid state transition")

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRowsLoaded:
		return "rows_loaded"
	case StateMessagesComposed:
		return "messages_composed"
	case StateVoicesSynthesized:
		return "voices_synthesized"
	case StateArchived:
		return "archived"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) require(minimum State, action string) error {
	if s < minimum {
		return fmt.Errorf("%w: %s requires %s, session is %s", ErrInvalidTransition, action, minimum, s)
	}

	return nil
}

// WarningKind classifies a row-level failure.
type WarningKind string

// Warning kinds.
const (
	KindMissingVariable    WarningKind = "missing_variable"
	KindGenerationFailure  WarningKind = "generation_failure"
	KindCompositionFailure WarningKind = "composition_failure"
	KindSynthesisFailure   WarningKind = "synthesis_failure"
	KindPublishFailure     WarningKind = "publish_failure"
)

// Warning reports a row-scoped failure. None of them stops the batch.
type Warning struct {
	Row    int         `json:"row"`
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (w Warning) String() string {
	return fmt.Sprintf("row %d: %s: %s", w.Row, w.Kind, w.Detail)
}
