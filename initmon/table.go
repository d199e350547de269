package initmon

import (
	"fmt"

	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"golang.org/x/exp/slices"
)

// Table maps slots to the process currently running for them. It has a fixed
// capacity and is not safe for concurrent use; only the supervisor goroutine
// touches it.
type Table struct {
	procs []exec.Process // nil if empty
}

// NewTable creates an empty table with the given capacity.
func NewTable(capacity int) *Table {
	return &Table{procs: make([]exec.Process, capacity)}
}

// Cap returns the number of slots.
func (t *Table) Cap() int { return len(t.procs) }

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	var n int
	for _, proc := range t.procs {
		if proc != nil {
			n++
		}
	}
	return n
}

// Set records that slot is now backed by proc, overwriting whatever was there.
// It panics if slot is out of range.
func (t *Table) Set(slot int, proc exec.Process) {
	if slot < 0 || slot >= len(t.procs) {
		panic(fmt.Sprintf("slot %d out of range [0, %d)", slot, len(t.procs)))
	}
	t.procs[slot] = proc
}

// Clear marks slot as empty.
func (t *Table) Clear(slot int) {
	if slot >= 0 && slot < len(t.procs) {
		t.procs[slot] = nil
	}
}

// Get returns the process in slot, or nil if the slot is empty.
func (t *Table) Get(slot int) exec.Process {
	if slot < 0 || slot >= len(t.procs) {
		return nil
	}
	return t.procs[slot]
}

// FindSlotByPID returns the slot backed by the given PID.
func (t *Table) FindSlotByPID(pid int) (int, bool) {
	slot := slices.IndexFunc(t.procs, func(proc exec.Process) bool {
		return proc != nil && proc.PID() == pid
	})
	return slot, slot != -1
}

// OccupiedSlots returns the occupied slots in ascending order.
func (t *Table) OccupiedSlots() []int {
	var slots []int
	for slot, proc := range t.procs {
		if proc != nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

// PIDs returns the PID of every slot, or 0 for empty slots.
func (t *Table) PIDs() []int {
	pids := make([]int, len(t.procs))
	for slot, proc := range t.procs {
		if proc != nil {
			pids[slot] = proc.PID()
		}
	}
	return pids
}
