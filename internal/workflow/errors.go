package workflow

import (
	"errors"
	"fmt"

	"github.com/steveyegge/novelflow/internal/types"
)

// ErrInvalidTransition is returned when no edge connects the two statuses
// or a condition on the edge fails.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError carries the specific reason a transition was refused.
// It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	EntityType types.EntityType
	EntityID   string
	From       types.Status
	To         types.Status
	Reason     string
}

// Error returns the blocking reason so callers can show it verbatim.
func (e *TransitionError) Error() string {
	return e.Reason
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Describe renders the refusal with its entity context.
func (e *TransitionError) Describe() string {
	return fmt.Sprintf("cannot move %s %s from %s to %s: %s", e.EntityType, e.EntityID, e.From, e.To, e.Reason)
}

func noEdgeReason(from, to types.Status) string {
	return fmt.Sprintf("Invalid transition from %s to %s", from, to)
}

func manualOnlyReason(from, to types.Status) string {
	return fmt.Sprintf("transition from %s to %s is manual-only", from, to)
}
