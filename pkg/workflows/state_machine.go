package workflows

// StateMachine enforces status transitions over any comparable status type
type StateMachine[S comparable] struct {
	allowedTransitions map[S][]S
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine[S comparable](transitions map[S][]S) *StateMachine[S] {
	allowed := make(map[S][]S, len(transitions))
	for from, to := range transitions {
		allowed[from] = append([]S(nil), to...)
	}
	return &StateMachine[S]{allowedTransitions: allowed}
}

// Knows reports whether the status appears in the transition table
func (sm *StateMachine[S]) Knows(status S) bool {
	_, exists := sm.allowedTransitions[status]
	return exists
}

// CanTransition checks if a status transition is allowed. Staying in the
// same known status is always allowed.
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	if from == to {
		return true
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	return append([]S(nil), allowed...)
}
