package model

import (
	"fmt"
	"strings"
)

// ProcessState represents the lifecycle state of a simulated process.
// DISPATCHED is held only while the scheduler awaits the process's report.
type ProcessState string

const (
	ProcessStateReady      ProcessState = "READY"
	ProcessStateDispatched ProcessState = "DISPATCHED"
	ProcessStateBlocked    ProcessState = "BLOCKED"
	ProcessStateTerminated ProcessState = "TERMINATED"
)

// String returns the string representation of the process state.
func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal returns true if the process is gone for good.
func (s ProcessState) IsTerminal() bool {
	return s == ProcessStateTerminated
}

// ValidProcessTransitions defines the allowed state transitions for processes.
var ValidProcessTransitions = map[ProcessState][]ProcessState{
	ProcessStateReady:      {ProcessStateDispatched},
	ProcessStateDispatched: {ProcessStateReady, ProcessStateBlocked, ProcessStateTerminated},
	ProcessStateBlocked:    {ProcessStateReady},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcessState) CanTransitionTo(next ProcessState) bool {
	for _, allowed := range ValidProcessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome is what a worker reports after consuming a quantum.
type Outcome string

const (
	// OutcomeContinue means the full quantum was used without finishing.
	OutcomeContinue Outcome = "CONTINUE"
	// OutcomeBlock means the process is waiting on an I/O-style event.
	OutcomeBlock Outcome = "BLOCK"
	// OutcomeTerminate means the process is done.
	OutcomeTerminate Outcome = "TERMINATE"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// NextState returns the state a dispatched process moves to on this outcome.
func (o Outcome) NextState() ProcessState {
	switch o {
	case OutcomeBlock:
		return ProcessStateBlocked
	case OutcomeTerminate:
		return ProcessStateTerminated
	default:
		return ProcessStateReady
	}
}

// ParseOutcome converts a case-insensitive string into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToUpper(strings.TrimSpace(s))); o {
	case OutcomeContinue, OutcomeBlock, OutcomeTerminate:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// RunState represents the lifecycle state of a simulation run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateTimedOut  RunState = "TIMED_OUT"
	RunStateFailed    RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run has ended.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateTimedOut, RunStateFailed:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateRunning: {RunStateCompleted, RunStateTimedOut, RunStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
