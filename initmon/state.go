package initmon

import (
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrNoRun is returned by ReadPreviousState if the journal has no record of a
// run.
var ErrNoRun = errors.New("no run found in journal")

// PreviousState is the state of the latest run recorded in a journal.
type PreviousState struct {
	RunID   string
	PID     int
	Config  string
	Started time.Time
	Stopped bool
	Slots   []SlotState // sorted by slot
}

// SlotState is the last known state of one slot.
type SlotState struct {
	Slot     int
	PID      int
	Command  string
	Running  bool
	Restarts int
	Updated  time.Time
}

// ReadPreviousState reads the journal backwards until the start of the latest
// run and returns what it knows about it. A run that is still going has
// Stopped set to false.
func ReadPreviousState(r JournalReader) (*PreviousState, error) {
	state := &PreviousState{}
	slots := map[int]*SlotState{}
	var seen bool

	slot := func(n int, t time.Time) (*SlotState, bool) {
		if s, ok := slots[n]; ok {
			return s, false
		}
		s := &SlotState{Slot: n, Updated: t}
		slots[n] = s
		return s, true
	}

	for {
		ev, t, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		seen = true

		switch ev := ev.(type) {
		case *EventDaemonStarted:
			state.RunID = ev.RunID
			state.PID = ev.PID
			state.Config = ev.Config
			state.Started = t
			state.Slots = sortSlots(slots)
			return state, nil

		case *EventDaemonStopped:
			state.Stopped = true

		case *EventChildStarted:
			// Events are read newest first, so only the first event seen for a
			// slot decides its state.
			s, fresh := slot(ev.Slot, t)
			if fresh {
				s.PID = ev.PID
				s.Running = true
			}
			if s.Command == "" {
				s.Command = ev.Command
			}

		case *EventChildExited:
			s, fresh := slot(ev.Slot, t)
			if fresh {
				s.PID = ev.PID
			}
			if ev.Restarting {
				s.Restarts++
			}

		case *EventChildStopped:
			if s, fresh := slot(ev.Slot, t); fresh {
				s.PID = ev.PID
			}

		case *EventChildSpawnError:
			if s, fresh := slot(ev.Slot, t); fresh {
				s.Command = ev.Command
			}
		}
	}

	if !seen {
		return nil, ErrNoRun
	}

	// The journal was truncated before the run started.
	state.Slots = sortSlots(slots)
	return state, nil
}

func sortSlots(slots map[int]*SlotState) []SlotState {
	states := make([]SlotState, 0, len(slots))
	for _, s := range slots {
		states = append(states, *s)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].Slot < states[j].Slot
	})

	return states
}
