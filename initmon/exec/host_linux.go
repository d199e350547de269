package exec

import (
	"os"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// HostOptions configures the process host returned by NewHost.
type HostOptions struct {
	// Executable is the binary started as the launch shim. It must call
	// RunShim when IsShim returns true. Defaults to os.Executable.
	Executable string
	// Report, if not nil, is passed to every child as file descriptor 3. The
	// launch shim writes its failures into it.
	Report *os.File
}

type host struct {
	opts  HostOptions
	exits chan ExitStatus
	kick  chan struct{}
}

// NewHost creates the process host for the current process. Only one host may
// exist per process, since it reaps every child.
func NewHost(opts HostOptions) (Host, error) {
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "failed to find own executable")
		}
		opts.Executable = exe
	}

	// We need to be the subreaper, otherwise children that double-fork are
	// reparented to the real init and we'd never hear about them.
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return nil, errors.Wrap(err, "failed to set subreaper")
	}

	h := &host{
		opts:  opts,
		exits: make(chan ExitStatus),
		kick:  make(chan struct{}, 1),
	}

	go h.reap()

	return h, nil
}

func (h *host) Exits() <-chan ExitStatus {
	return h.exits
}

// Start starts the launch shim for the given command. The shim opens the
// redirections and replaces itself with the command, so the returned PID is
// also the command's PID.
func (h *host) Start(cmd Command) (Process, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty argument vector")
	}

	files := []*os.File{os.Stdin, os.Stdout, os.Stderr}
	report := "-1"
	if h.opts.Report != nil {
		files = append(files, h.opts.Report)
		report = strconv.Itoa(len(files) - 1)
	}

	argv := make([]string, 0, len(cmd.Args)+6)
	argv = append(argv, ShimName, report, strconv.Itoa(cmd.Slot), cmd.Stdin, cmd.Stdout, cmd.Path)
	argv = append(argv, cmd.Args...)

	p, err := os.StartProcess(h.opts.Executable, argv, &os.ProcAttr{
		Files: files,
		// The child receives SIGTERM if the thread that started it dies. Go
		// only kills threads of goroutines that exit while locked, which we
		// never do, so in practice this fires when initmon itself dies.
		Sys: &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM},
	})
	if err != nil {
		return nil, err
	}

	select {
	case h.kick <- struct{}{}:
	default:
	}

	return process{p}, nil
}

// reap waits for any child to exit, forever.
func (h *host) reap() {
	for {
		var ws unix.WaitStatus

		pid, err := unix.Wait4(-1, &ws, 0, nil)
		switch {
		case err == unix.EINTR:
			continue

		case err == unix.ECHILD:
			// No children at all. Park until Start makes one.
			<-h.kick
			continue

		case err != nil:
			h.exits <- ExitStatus{PID: -1, Code: -1, Error: errors.Wrap(err, "wait4 failed")}
			<-h.kick
			continue
		}

		h.exits <- exitStatus(pid, ws)
	}
}
