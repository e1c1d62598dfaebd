// Package proctable implements the scheduler's fixed-capacity table of
// process control blocks.
package proctable

import (
	"fmt"

	"github.com/me/ossim/pkg/model"
)

// DefaultCapacity is the number of slots in a default table.
const DefaultCapacity = 18

// Table is a fixed array of PCB slots. It is owned by the scheduler and is
// not safe for concurrent use.
type Table struct {
	slots []model.PCB
	index map[model.ProcessID]int
}

// New creates an empty table with capacity slots. A non-positive capacity
// selects DefaultCapacity.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		slots: make([]model.PCB, capacity),
		index: make(map[model.ProcessID]int, capacity),
	}
}

// Allocate claims the lowest-numbered free slot for id. The new PCB starts
// at level 0 with no service time, READY and not blocked.
func (t *Table) Allocate(id model.ProcessID, start model.SimTime) (int, error) {
	if _, ok := t.index[id]; ok {
		return -1, fmt.Errorf("process %d already has a slot", id)
	}
	for i := range t.slots {
		if t.slots[i].Occupied {
			continue
		}
		t.slots[i] = model.PCB{
			Occupied: true,
			ID:       id,
			Start:    start,
			State:    model.ProcessStateReady,
		}
		t.index[id] = i
		return i, nil
	}
	return -1, model.NewCapacityError(len(t.slots))
}

// Release frees id's slot, resetting it to the zero PCB.
func (t *Table) Release(id model.ProcessID) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("process %d has no slot", id)
	}
	t.slots[i] = model.PCB{}
	delete(t.index, id)
	return nil
}

// Lookup returns a pointer to id's PCB for in-place updates.
func (t *Table) Lookup(id model.ProcessID) (*model.PCB, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.slots[i], true
}

// SlotOf returns the index holding id.
func (t *Table) SlotOf(id model.ProcessID) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Live returns the number of occupied slots.
func (t *Table) Live() int { return len(t.index) }

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.slots) }

// Full reports whether every slot is occupied.
func (t *Table) Full() bool { return len(t.index) == len(t.slots) }

// Snapshot returns a copy of every slot, occupied or not.
func (t *Table) Snapshot() []model.PCB {
	out := make([]model.PCB, len(t.slots))
	copy(out, t.slots)
	return out
}
