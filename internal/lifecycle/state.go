package lifecycle

import "fmt"

// State is the derived status of the whole deployment group.
type State string

const (
	StateUninitialized State = "Uninitialized"
	StateBuilding      State = "Building"
	StateStarting      State = "Starting"
	StateReady         State = "Ready"
	StateDegraded      State = "Degraded"
	StateRestarting    State = "Restarting"
	StateResetting     State = "Resetting"
	StateStopped       State = "Stopped"
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	return string(s)
}

// Running reports whether services are assumed to be up in this state.
func (s State) Running() bool {
	return s != StateStopped && s != StateUninitialized
}

// transitions lists the legal moves. Stop is always attempted and restart is
// legal from anywhere, so Stopped and Restarting are reachable from every
// state and are handled in canTransition.
var transitions = map[State][]State{
	StateUninitialized: {StateBuilding},
	StateBuilding:      {StateStarting},
	StateStarting:      {StateReady, StateDegraded},
	StateReady:         {StateDegraded},
	StateStopped:       {StateResetting},
	StateResetting:     {StateUninitialized},
	StateRestarting:    {StateStarting},
}

func canTransition(from, to State) bool {
	if to == StateStopped || to == StateRestarting {
		return from != StateResetting
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
