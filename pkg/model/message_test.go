package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewDispatch(t *testing.T) {
	at := SimTime{1, 0}
	msg := NewDispatch(4, 20*time.Millisecond, at)
	if msg.Kind != MessageGrant || msg.To != 4 || msg.From != SchedulerID {
		t.Errorf("unexpected grant: %+v", msg)
	}
	if msg.Quantum != 20*time.Millisecond || msg.IssuedAt != at {
		t.Errorf("quantum/issued_at not carried: %+v", msg)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
}

func TestNewReport(t *testing.T) {
	msg := NewReport(4, OutcomeBlock)
	if msg.Kind != MessageReport || msg.To != SchedulerID || msg.From != 4 || msg.Outcome != OutcomeBlock {
		t.Errorf("unexpected report: %+v", msg)
	}
	other := NewReport(4, OutcomeBlock)
	if msg.ID == other.ID {
		t.Error("message ids must be unique")
	}
}
