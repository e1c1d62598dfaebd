package model

import "time"

// EventKind names a scheduler event handed to the sink.
type EventKind string

const (
	EventAdmitted   EventKind = "ADMITTED"
	EventDispatched EventKind = "DISPATCHED"
	EventReported   EventKind = "REPORTED"
	EventDemoted    EventKind = "DEMOTED"
	EventBlocked    EventKind = "BLOCKED"
	EventWoken      EventKind = "WOKEN"
	EventTerminated EventKind = "TERMINATED"
	EventSnapshot   EventKind = "SNAPSHOT"
	EventIdle       EventKind = "IDLE"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// Event is one structured record of what the scheduler did.
type Event struct {
	RunID    string        `json:"run_id"`
	Seq      int64         `json:"seq"`
	Kind     EventKind     `json:"kind"`
	PID      ProcessID     `json:"pid,omitempty"`
	Level    int           `json:"level"`
	Quantum  time.Duration `json:"quantum_ns,omitempty"`
	Outcome  Outcome       `json:"outcome,omitempty"`
	Clock    SimTime       `json:"clock"`
	Detail   string        `json:"detail,omitempty"`
	Snapshot *Snapshot     `json:"snapshot,omitempty"`
}

// Run is the persisted summary of one simulation.
type Run struct {
	ID         string     `json:"id"`
	State      RunState   `json:"state"`
	Config     any        `json:"config,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Admitted   int        `json:"admitted"`
	Terminated int        `json:"terminated"`
	Dispatches int        `json:"dispatches"`
	Messages   int64      `json:"messages"`
	FinalClock SimTime    `json:"final_clock"`
	ExitReason string     `json:"exit_reason,omitempty"`
	ErrorKind  ErrorKind  `json:"error_kind,omitempty"`
}
