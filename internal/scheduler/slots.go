package scheduler

import (
	"sync/atomic"
)

// SlotTable is the ordered list of groups a worker pool covers, with one
// occupied flag per group and a claim cursor shared by every worker.
type SlotTable struct {
	groups   []string
	occupied []atomic.Bool
	cursor   atomic.Uint64
}

// NewSlotTable assigns slot i to worker i for the first workers slots and
// leaves the cursor on the first unassigned slot.
func NewSlotTable(groups []string, workers int) *SlotTable {
	t := &SlotTable{
		groups:   append([]string(nil), groups...),
		occupied: make([]atomic.Bool, len(groups)),
	}
	if workers > len(groups) {
		workers = len(groups)
	}
	for i := 0; i < workers; i++ {
		t.occupied[i].Store(true)
	}
	t.cursor.Store(uint64(workers))
	return t
}

func (t *SlotTable) Len() int {
	return len(t.groups)
}

// Group resolves a slot to its group id. Slots beyond the table wrap around.
func (t *SlotTable) Group(slot int) (string, bool) {
	if len(t.groups) == 0 || slot < 0 {
		return "", false
	}
	return t.groups[slot%len(t.groups)], true
}

func (t *SlotTable) Groups() []string {
	return append([]string(nil), t.groups...)
}

func (t *SlotTable) Occupied(slot int) bool {
	if slot < 0 || slot >= len(t.occupied) {
		return false
	}
	return t.occupied[slot].Load()
}

func (t *SlotTable) OccupiedCount() int {
	n := 0
	for i := range t.occupied {
		if t.occupied[i].Load() {
			n++
		}
	}
	return n
}

// Rotate releases current and claims the next free slot from the cursor.
// When every other slot is taken the worker claims current again.
func (t *SlotTable) Rotate(current int) int {
	size := len(t.occupied)
	if size == 0 {
		return current
	}
	if current >= 0 && current < size {
		t.occupied[current].Store(false)
	}

	for i := 0; i < size; i++ {
		next := int((t.cursor.Add(1) - 1) % uint64(size))
		if t.occupied[next].CompareAndSwap(false, true) {
			return next
		}
	}

	// Concurrent rotations can move the cursor past every free slot.
	start := ((current % size) + size) % size
	for i := 0; i < size; i++ {
		next := (start + i) % size
		if t.occupied[next].CompareAndSwap(false, true) {
			return next
		}
	}

	t.occupied[start].Store(true)
	return start
}
