package graph

import "fmt"

// ConfigError reports invalid graph wiring detected at compile time: an
// undefined entry point, an edge referencing an undeclared node, or a
// conditional mapping whose destination is not a declared node. It is never
// returned at run time.
type ConfigError struct {
	// Reason describes what is wrong with the graph definition.
	Reason string
}

func (e *ConfigError) Error() string {
	return "graph: invalid configuration: " + e.Reason
}

// ExecutionError reports a fatal engine-level failure during a run: the step
// cap was exceeded (a router/node contract violation producing a true
// infinite loop), a router returned a decision absent from its mapping, or a
// node returned an error instead of recording the failure in state.
type ExecutionError struct {
	// RunID identifies the run that failed.
	RunID string
	// Node is the node executing (or routing) when the failure occurred.
	Node string
	// Step is the 1-based step count at the time of failure.
	Step int
	// Reason describes the contract violation.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("graph: run %s failed at step %d (node %s): %s", e.RunID, e.Step, e.Node, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
