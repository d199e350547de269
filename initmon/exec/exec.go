// Package exec provides an abstraction around starting and reaping child
// processes for easier testing.
package exec

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process describes a started child process.
type Process interface {
	PID() int
	Signal(os.Signal) error
}

// ExitStatus is a reaped process' exit status.
type ExitStatus struct {
	PID    int
	Code   int            // -1 if killed by a signal
	Signal syscall.Signal // 0 unless killed by a signal
	Error  error
}

// Signaled returns true if the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// SignalName returns the name of the signal that killed the process, such as
// "SIGTERM", or an empty string.
func (s ExitStatus) SignalName() string {
	if s.Signal == 0 {
		return ""
	}
	if name := unix.SignalName(s.Signal); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(s.Signal))
}

// Command describes a program to start with redirected standard streams.
type Command struct {
	Slot   int
	Path   string
	Args   []string
	Stdin  string // opened read-only
	Stdout string // opened write-only, created and truncated
}

// Host starts processes and reports every child that exits. Exits are reported
// for all children of the current process, including orphans reparented to it,
// so callers must tolerate PIDs they did not start.
type Host interface {
	Start(Command) (Process, error)
	Exits() <-chan ExitStatus
}

type process struct {
	*os.Process
}

var _ Process = process{}

func (proc process) PID() int {
	return proc.Pid
}

func exitStatus(pid int, ws unix.WaitStatus) ExitStatus {
	status := ExitStatus{
		PID:  pid,
		Code: ws.ExitStatus(),
	}

	if ws.Signaled() {
		status.Code = -1
		status.Signal = ws.Signal()
	}

	return status
}
