package quizsession

// State is the lifecycle position of a session.
type State int

const (
	StateLoading State = iota
	StateResuming
	StateReconciling
	StateInitializing
	StateAwaitingReady
	StateRunning
	StateWarned
	StateFinished
	StateLoadFailed
)

var stateNames = map[State]string{
	StateLoading:       "loading",
	StateResuming:      "resuming",
	StateReconciling:   "reconciling",
	StateInitializing:  "initializing",
	StateAwaitingReady: "awaiting_ready",
	StateRunning:       "running",
	StateWarned:        "warned",
	StateFinished:      "finished",
	StateLoadFailed:    "load_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets State travel as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Loading reports whether the session is still resolving its initial data.
func (s State) Loading() bool {
	switch s {
	case StateLoading, StateResuming, StateReconciling, StateInitializing:
		return true
	}
	return false
}

// Ready reports whether the readiness gate has been passed and the session
// is not finished. Integrity monitoring is active exactly in these states.
func (s State) Ready() bool {
	return s == StateRunning || s == StateWarned
}

var transitions = map[State][]State{
	StateLoading:       {StateResuming, StateReconciling, StateInitializing, StateFinished, StateLoadFailed},
	StateResuming:      {StateAwaitingReady, StateLoadFailed},
	StateReconciling:   {StateAwaitingReady, StateLoadFailed},
	StateInitializing:  {StateAwaitingReady, StateLoadFailed},
	StateAwaitingReady: {StateRunning, StateFinished},
	StateRunning:       {StateWarned, StateFinished},
	StateWarned:        {StateRunning, StateFinished},
}

// CanTransition reports whether moving from s to next is legal. Finished
// and LoadFailed are terminal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
