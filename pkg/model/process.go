package model

import (
	"strconv"
	"time"
)

// ProcessID identifies a process on the dispatch channel. The scheduler owns
// SchedulerID; workers are numbered from 1 by the launcher.
type ProcessID int

// SchedulerID is the address every worker report is tagged with.
const SchedulerID ProcessID = 0

// String returns the decimal form of the id.
func (id ProcessID) String() string {
	return strconv.Itoa(int(id))
}

// PCB is the process control block kept in the scheduler's process table.
// The zero value is an unoccupied slot.
type PCB struct {
	Occupied bool          `json:"occupied"`
	ID       ProcessID     `json:"pid"`
	Start    SimTime       `json:"start"`
	Service  time.Duration `json:"service_ns"`
	Wake     SimTime       `json:"wake"`
	Blocked  bool          `json:"blocked"`
	Level    int           `json:"level"`
	State    ProcessState  `json:"state,omitempty"`
}

// Levels is the number of ready queues in the feedback scheduler.
const Levels = 3

// Snapshot is a read-only view of the scheduler's bookkeeping at one clock time.
type Snapshot struct {
	Clock   SimTime             `json:"clock"`
	Table   []PCB               `json:"table"`
	Queues  [Levels][]ProcessID `json:"queues"`
	Blocked []ProcessID         `json:"blocked"`
}
