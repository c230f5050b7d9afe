package scenario

import (
	"github.com/looplab/fsm"
)

const (
	StateBuilding   = "Building"
	StateDegraded   = "Degraded"
	StateRecovering = "Recovering"
	StateVerified   = "Verified"
	StateFailed     = "Failed"

	EventDegrade = "degrade"
	EventRecover = "recover"
	EventVerify  = "verify"
	EventFail    = "fail"
)

// states in the order a successful run visits them
var states = []string{StateBuilding, StateDegraded, StateRecovering, StateVerified, StateFailed}

// newStateMachine creates the scenario state machine:
// Building -> Degraded -> Recovering -> Verified, and Failed from any non final state.
func newStateMachine(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		StateBuilding,
		fsm.Events{
			{
				Name: EventDegrade,
				Src:  []string{StateBuilding},
				Dst:  StateDegraded,
			},
			{
				Name: EventRecover,
				Src:  []string{StateDegraded},
				Dst:  StateRecovering,
			},
			{
				Name: EventVerify,
				Src:  []string{StateRecovering},
				Dst:  StateVerified,
			},
			{
				Name: EventFail,
				Src: []string{
					StateBuilding,
					StateDegraded,
					StateRecovering,
				},
				Dst: StateFailed,
			},
		},
		callbacks,
	)
}

func stateIndex(state string) int {
	for i, s := range states {
		if s == state {
			return i
		}
	}

	return -1
}
