package purchase

import "fmt"

// nextStatus maps each non-terminal status to its single legal successor on the
// happy path. LOST is handled separately: it is legal from any non-terminal
// status and never appears as a key here.
var nextStatus = map[Status]Status{
	StatusDraft:            StatusPaymentConfirmed,
	StatusPaymentConfirmed: StatusSupplierDispatch,
	StatusSupplierDispatch: StatusShippedBD,
	StatusShippedBD:        StatusArrivedBD,
	StatusArrivedBD:        StatusInTransitBogura,
	StatusInTransitBogura:  StatusReceivedHub,
	StatusReceivedHub:      StatusCompleted,
}

// CanTransition reports whether moving from current to target is legal.
// No stage skipping, no moving backward; LOST from any non-terminal state.
func CanTransition(current, target Status) bool {
	if !current.IsValid() || !target.IsValid() {
		return false
	}
	if current.Terminal() {
		return false
	}
	if target == StatusLost {
		return true
	}
	return nextStatus[current] == target
}

// checkTransition returns ErrIllegalTransition with both states named.
func checkTransition(current, target Status) error {
	if !CanTransition(current, target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}
	return nil
}

// requireField rejects empty stage-mandatory inputs before any mutation.
func requireField(name string, present bool) error {
	if !present {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}
