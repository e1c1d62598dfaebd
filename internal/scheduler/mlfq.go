package scheduler

import (
	"sort"

	"github.com/me/ossim/pkg/model"
)

// ReadyQueues holds one FIFO per priority level. Level 0 is the highest.
type ReadyQueues struct {
	levels [model.Levels][]model.ProcessID
}

// Enqueue appends id at the tail of level.
func (q *ReadyQueues) Enqueue(level int, id model.ProcessID) {
	q.levels[level] = append(q.levels[level], id)
}

// Next removes and returns the head of the highest-priority non-empty level.
func (q *ReadyQueues) Next() (model.ProcessID, int, bool) {
	for level := range q.levels {
		if len(q.levels[level]) == 0 {
			continue
		}
		id := q.levels[level][0]
		q.levels[level] = q.levels[level][1:]
		return id, level, true
	}
	return 0, 0, false
}

// Contains reports the level holding id.
func (q *ReadyQueues) Contains(id model.ProcessID) (int, bool) {
	for level, ids := range q.levels {
		for _, other := range ids {
			if other == id {
				return level, true
			}
		}
	}
	return 0, false
}

// Len returns the number of ready processes across all levels.
func (q *ReadyQueues) Len() int {
	n := 0
	for _, ids := range q.levels {
		n += len(ids)
	}
	return n
}

// Contents returns a copy of every level, head first.
func (q *ReadyQueues) Contents() [model.Levels][]model.ProcessID {
	var out [model.Levels][]model.ProcessID
	for level, ids := range q.levels {
		out[level] = append([]model.ProcessID{}, ids...)
	}
	return out
}

type blockedEntry struct {
	id   model.ProcessID
	wake model.SimTime
}

// BlockedSet holds processes waiting for their wake time, ordered by wake
// time and then by the order they blocked in.
type BlockedSet struct {
	entries []blockedEntry
}

// Block adds id with the given wake time.
func (b *BlockedSet) Block(id model.ProcessID, wake model.SimTime) {
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].wake.After(wake)
	})
	b.entries = append(b.entries, blockedEntry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = blockedEntry{id: id, wake: wake}
}

// Wake removes and returns every id whose wake time is at or before now.
func (b *BlockedSet) Wake(now model.SimTime) []model.ProcessID {
	n := 0
	for n < len(b.entries) && !b.entries[n].wake.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	ids := make([]model.ProcessID, n)
	for i := range ids {
		ids[i] = b.entries[i].id
	}
	b.entries = b.entries[n:]
	return ids
}

// Contains reports whether id is blocked.
func (b *BlockedSet) Contains(id model.ProcessID) bool {
	for _, e := range b.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

// Len returns the number of blocked processes.
func (b *BlockedSet) Len() int { return len(b.entries) }

// IDs returns the blocked ids in wake order.
func (b *BlockedSet) IDs() []model.ProcessID {
	ids := make([]model.ProcessID, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.id
	}
	return ids
}
