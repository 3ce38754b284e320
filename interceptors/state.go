package interceptors

// State is the lifecycle state of a single chain invocation
type State int

const (
	// StatePending is the state of a context that has not been invoked yet
	StatePending State = iota
	// StateRunning means a step of the chain is executing; see Context.Position
	StateRunning
	// StateHalted means an interceptor returned without continuing the chain
	StateHalted
	// StateCompleted means the terminal handler ran and the chain unwound cleanly
	StateCompleted
	// StateFailed means an error escaped the chain
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen
func (s State) IsTerminal() bool {
	return s == StateHalted || s == StateCompleted || s == StateFailed
}

// Outcome is the diagnostic summary returned by Chain.Invoke
type Outcome struct {
	State State
	// Position is the index of the step that halted the chain or where the
	// failure originated. It equals the chain length when the terminal handler
	// is meant, and -1 when no step ran.
	Position int
	// Interceptor is the name of the step at Position
	Interceptor string
}

// HaltedEarly reports whether the chain stopped before completing
func (o Outcome) HaltedEarly() bool {
	return o.State == StateHalted
}
