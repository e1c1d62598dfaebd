package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes the two halves of a dispatch exchange.
type MessageKind string

const (
	// MessageGrant carries a quantum from the scheduler to a worker.
	MessageGrant MessageKind = "GRANT"
	// MessageReport carries an outcome from a worker back to the scheduler.
	MessageReport MessageKind = "REPORT"
)

// Message is the unit exchanged over the dispatch channel. To is the
// destination tag; a receiver only ever sees messages addressed to it.
type Message struct {
	ID       string        `json:"id"`
	Kind     MessageKind   `json:"kind"`
	To       ProcessID     `json:"to"`
	From     ProcessID     `json:"from"`
	Quantum  time.Duration `json:"quantum_ns,omitempty"`
	IssuedAt SimTime       `json:"issued_at"`
	Outcome  Outcome       `json:"outcome,omitempty"`
}

// NewDispatch builds a quantum grant for a worker. issuedAt is the clock
// reading when the grant was sent.
func NewDispatch(to ProcessID, quantum time.Duration, issuedAt SimTime) Message {
	return Message{
		ID:       "msg_" + uuid.New().String(),
		Kind:     MessageGrant,
		To:       to,
		From:     SchedulerID,
		Quantum:  quantum,
		IssuedAt: issuedAt,
	}
}

// NewReport builds a worker's report, addressed to the scheduler.
func NewReport(from ProcessID, outcome Outcome) Message {
	return Message{
		ID:      "msg_" + uuid.New().String(),
		Kind:    MessageReport,
		To:      SchedulerID,
		From:    from,
		Outcome: outcome,
	}
}
