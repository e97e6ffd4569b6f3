package purchase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var happyPath = []Status{
	StatusDraft,
	StatusPaymentConfirmed,
	StatusSupplierDispatch,
	StatusShippedBD,
	StatusArrivedBD,
	StatusInTransitBogura,
	StatusReceivedHub,
	StatusCompleted,
}

func TestCanTransitionHappyPath(t *testing.T) {
	for i := 0; i < len(happyPath)-1; i++ {
		require.True(t, CanTransition(happyPath[i], happyPath[i+1]),
			"%s -> %s must be legal", happyPath[i], happyPath[i+1])
	}
}

func TestCanTransitionNoSkippingOrBacktracking(t *testing.T) {
	for i, from := range happyPath {
		for j, to := range happyPath {
			legal := CanTransition(from, to)
			if j == i+1 {
				require.True(t, legal, "%s -> %s", from, to)
				continue
			}
			require.False(t, legal, "%s -> %s must be illegal", from, to)
		}
	}
}

func TestCanTransitionLost(t *testing.T) {
	for _, from := range happyPath {
		if from.Terminal() {
			require.False(t, CanTransition(from, StatusLost), "%s is terminal", from)
			continue
		}
		require.True(t, CanTransition(from, StatusLost), "%s -> LOST must be legal", from)
	}
}

func TestCanTransitionTerminalStates(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusLost} {
		for _, to := range append(happyPath, StatusLost) {
			require.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	require.False(t, CanTransition(Status("PENDING"), StatusDraft))
	require.False(t, CanTransition(StatusDraft, Status("PENDING")))
}

func TestCheckTransitionNamesBothStates(t *testing.T) {
	err := checkTransition(StatusDraft, StatusShippedBD)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Contains(t, err.Error(), "DRAFT -> SHIPPED_BD")
}

func TestStatusPredicates(t *testing.T) {
	require.True(t, StatusDraft.IsValid())
	require.True(t, StatusLost.IsValid())
	require.False(t, Status("CANCELLED").IsValid())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusLost.Terminal())
	require.False(t, StatusReceivedHub.Terminal())
}
