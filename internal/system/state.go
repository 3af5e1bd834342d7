package system

import "fmt"

// SystemState is the lifecycle state of the service. DEGRADED is never
// stored; it is reported instead of RUNNING while a sensor is failing.
type SystemState int

const (
	StateInitializing SystemState = iota
	StateRunning
	StateDegraded
	StateStopping
	StateStopped
	StateError
)

var stateNames = map[SystemState]string{
	StateInitializing: "INITIALIZING",
	StateRunning:      "RUNNING",
	StateDegraded:     "DEGRADED",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
	StateError:        "ERROR",
}

func (s SystemState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s SystemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// reported folds sensor health into a stored state.
func reported(state SystemState, sensors, healthy int) SystemState {
	if state == StateRunning && healthy < sensors {
		return StateDegraded
	}
	return state
}

var validTransitions = map[SystemState][]SystemState{
	StateInitializing: {StateRunning, StateStopping, StateError},
	StateRunning:      {StateStopping, StateError},
	StateStopping:     {StateStopped, StateError},
	StateStopped:      {StateInitializing},
	StateError:        {StateInitializing, StateStopping, StateStopped},
}

// ValidateTransition checks a change of the stored state.
func ValidateTransition(from, to SystemState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
