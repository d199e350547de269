package initmon

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is the state of the Supervisor as a whole.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateReloading
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReloading:
		return "reloading"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Request is a request to the supervisor goroutine.
type Request int

const (
	// RequestReload reloads the configuration and restarts every child.
	RequestReload Request = iota + 1
	// RequestTerminate stops every child and makes Run return.
	RequestTerminate
)

func (r Request) String() string {
	switch r {
	case RequestReload:
		return "reload"
	case RequestTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("Request(%d)", int(r))
	}
}

// Supervisor starts the configured children and restarts them when they
// exit.
type Supervisor struct {
	// RunID identifies this run in the journal.
	RunID string

	j      Journaler
	host   exec.Host
	table  *Table
	launch *Launcher
	path   string
	snap   *Snapshot

	reqs  chan Request
	evCh  chan func()
	done  chan struct{}
	state int32
}

// NewSupervisor creates a supervisor for the configuration file at path. The
// file is only read once Run is called. max is the capacity of the process
// table.
func NewSupervisor(path string, max int, host exec.Host, j Journaler) *Supervisor {
	if max <= 0 {
		max = MaxChildren
	}

	table := NewTable(max)

	return &Supervisor{
		RunID:  uuid.NewString(),
		j:      j,
		host:   host,
		table:  table,
		launch: NewLauncher(host, table, j),
		path:   path,
		snap:   &Snapshot{Path: path},
		reqs:   make(chan Request),
		evCh:   make(chan func()),
		done:   make(chan struct{}),
	}
}

// State returns the current state. It is safe to call from any goroutine.
func (s *Supervisor) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Supervisor) setState(state State) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Request queues a request for the supervisor goroutine. It blocks until the
// supervisor picks the request up, which may be after a previous request has
// been fully handled. False is returned if Run has already returned.
func (s *Supervisor) Request(req Request) bool {
	select {
	case s.reqs <- req:
		return true
	case <-s.done:
		return false
	}
}

// Reload is a shortcut for Request(RequestReload).
func (s *Supervisor) Reload() bool { return s.Request(RequestReload) }

// Terminate is a shortcut for Request(RequestTerminate).
func (s *Supervisor) Terminate() bool { return s.Request(RequestTerminate) }

// Done returns a channel that is closed once Run returns.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// PIDs returns the PID of every slot in the table, with 0 for empty slots. It
// returns nil if Run has not been called or has returned.
func (s *Supervisor) PIDs() []int {
	var pids []int
	s.do(func() { pids = s.table.PIDs() })
	return pids
}

// Snapshot returns the configuration in effect. It returns nil if Run has not
// been called or has returned.
func (s *Supervisor) Snapshot() *Snapshot {
	var snap *Snapshot
	s.do(func() { snap = s.snap })
	return snap
}

// do runs fn on the supervisor goroutine and waits for it.
func (s *Supervisor) do(fn func()) bool {
	if s.State() == StateIdle {
		return false
	}

	ran := make(chan struct{})
	select {
	case s.evCh <- func() { fn(); close(ran) }:
		<-ran
		return true
	case <-s.done:
		return false
	}
}

// Run loads the configuration, starts every child and supervises them until
// a terminate request is handled or ctx is canceled. Every child is stopped
// before Run returns. Run must only be called once.
//
// A configuration that cannot be read is not fatal: the supervisor runs with
// no children until a reload succeeds.
func (s *Supervisor) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, int32(StateIdle), int32(StateRunning)) {
		return errors.New("supervisor already started")
	}
	defer close(s.done)

	s.j.Write(&EventDaemonStarted{
		PID:    os.Getpid(),
		RunID:  s.RunID,
		Config: s.path,
	})

	snap, err := LoadSnapshot(s.path, s.table.Cap(), s.j)
	if err != nil {
		s.j.Write(&EventWarning{Component: "config", Error: err.Error()})
	} else {
		s.snap = snap
	}

	s.startAll()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil

		case req := <-s.reqs:
			switch req {
			case RequestReload:
				s.reload()
			case RequestTerminate:
				s.drain()
				return nil
			}

		case status := <-s.host.Exits():
			s.reaped(status)

		case fn := <-s.evCh:
			fn()
		}
	}
}

// startAll launches every child of the current snapshot in slot order.
func (s *Supervisor) startAll() {
	for slot, spec := range s.snap.Children {
		// Failures are journaled by the launcher.
		s.launch.Launch(slot, spec)
	}
}

// reaped handles a child that exited on its own by restarting it.
func (s *Supervisor) reaped(status exec.ExitStatus) {
	slot, ok := s.table.FindSlotByPID(status.PID)
	if !ok {
		s.unknownExit(status)
		return
	}

	s.table.Clear(slot)

	restart := slot < len(s.snap.Children)

	s.j.Write(&EventChildExited{
		Slot:       slot,
		PID:        status.PID,
		ExitCode:   status.Code,
		Signal:     status.SignalName(),
		Restarting: restart,
	})

	if restart {
		s.launch.Launch(slot, s.snap.Children[slot])
	}
}

func (s *Supervisor) unknownExit(status exec.ExitStatus) {
	ev := &EventUnknownExit{
		PID:      status.PID,
		ExitCode: status.Code,
		Signal:   status.SignalName(),
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}
	s.j.Write(ev)
}

// reload replaces the snapshot and restarts every child. If the new
// configuration cannot be loaded, nothing is touched.
func (s *Supervisor) reload() {
	s.setState(StateReloading)
	defer s.setState(StateRunning)

	s.j.Write(&EventReloadRequested{Path: s.path})

	snap, err := LoadSnapshot(s.path, s.table.Cap(), s.j)
	if err != nil {
		s.j.Write(&EventReloadFailed{Path: s.path, Reason: err.Error()})
		return
	}

	s.stopAll()
	s.snap = snap
	s.startAll()
}

// drain stops every child for shutdown.
func (s *Supervisor) drain() {
	s.setState(StateDraining)

	s.j.Write(&EventTerminateRequested{})
	s.stopAll()

	s.setState(StateStopped)
	s.j.Write(&EventDaemonStopped{})
}

// stopAll stops every occupied slot in ascending order.
func (s *Supervisor) stopAll() {
	for _, slot := range s.table.OccupiedSlots() {
		// The child may have been reaped while we were waiting for an earlier
		// one.
		if proc := s.table.Get(slot); proc != nil {
			s.stop(slot, proc)
		}
	}
}

// stop sends SIGTERM to the child in slot and waits for it to exit. Other
// children that exit in the meantime are cleared but not restarted. The wait
// has no timeout.
func (s *Supervisor) stop(slot int, proc exec.Process) {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.j.Write(&EventWarning{
			Component: "supervisor",
			Error:     fmt.Sprintf("failed to signal child %d (PID %d): %v", slot, proc.PID(), err),
		})
	}

	for status := range s.host.Exits() {
		exited, ok := s.table.FindSlotByPID(status.PID)
		if !ok {
			s.unknownExit(status)
			continue
		}

		s.table.Clear(exited)

		if exited == slot {
			s.j.Write(&EventChildStopped{
				Slot:     slot,
				PID:      status.PID,
				ExitCode: status.Code,
				Signal:   status.SignalName(),
			})
			return
		}

		s.j.Write(&EventChildExited{
			Slot:     exited,
			PID:      status.PID,
			ExitCode: status.Code,
			Signal:   status.SignalName(),
		})
	}
}
