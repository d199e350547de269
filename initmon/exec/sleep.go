package exec

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// SleepHost is a Host whose processes only idle until they are signaled or
// told to exit. It is used for testing. PIDs start at 1 and are never reused.
type SleepHost struct {
	// Delay is how long a process waits after a catchable signal before
	// exiting. It must be set before the first Start.
	Delay time.Duration
	// StartError, if not nil, is called on every Start. A non-nil error fails
	// the start.
	StartError func(Command) error

	exits chan ExitStatus

	mu      sync.Mutex
	procs   map[int]*sleepProcess
	started []Command
	lastPID int
}

var _ Host = (*SleepHost)(nil)

// NewSleepHost creates a new SleepHost.
func NewSleepHost() *SleepHost {
	return &SleepHost{
		exits: make(chan ExitStatus),
		procs: make(map[int]*sleepProcess),
	}
}

// Start starts a new sleeping process.
func (h *SleepHost) Start(cmd Command) (Process, error) {
	if h.StartError != nil {
		if err := h.StartError(cmd); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastPID++
	proc := &sleepProcess{
		host: h,
		pid:  h.lastPID,
		stop: make(chan struct{}),
	}

	h.procs[proc.pid] = proc
	h.started = append(h.started, cmd)

	return proc, nil
}

// Exits returns the channel of exited processes.
func (h *SleepHost) Exits() <-chan ExitStatus {
	return h.exits
}

// Exit makes the process exit on its own with the given code. False is
// returned if the process is not running.
func (h *SleepHost) Exit(pid, code int) bool {
	h.mu.Lock()
	proc, ok := h.procs[pid]
	h.mu.Unlock()

	if !ok {
		return false
	}

	return proc.exit(ExitStatus{PID: pid, Code: code})
}

// Inject reports an exit for a process the host never started, like an
// orphan reparented to the supervisor.
func (h *SleepHost) Inject(status ExitStatus) {
	go func() { h.exits <- status }()
}

// Started returns every command started so far, in order.
func (h *SleepHost) Started() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Command(nil), h.started...)
}

// Running returns the PIDs of processes that have not exited yet.
func (h *SleepHost) Running() []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	pids := make([]int, 0, len(h.procs))
	for pid := range h.procs {
		pids = append(pids, pid)
	}

	return pids
}

type sleepProcess struct {
	host *SleepHost
	pid  int
	once sync.Once
	stop chan struct{}
}

func (mock *sleepProcess) PID() int { return mock.pid }

func (mock *sleepProcess) Signal(sig os.Signal) error {
	var delay time.Duration

	switch sig {
	case syscall.SIGINT, syscall.SIGTERM: // catchable
		delay = mock.host.Delay
	case syscall.SIGKILL:
		delay = 0
	default:
		return errors.New("unknown signal")
	}

	select {
	case <-mock.stop:
		return os.ErrProcessDone
	default:
	}

	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-mock.stop:
				return
			}
		}

		mock.exit(ExitStatus{
			PID:    mock.pid,
			Code:   -1,
			Signal: sig.(syscall.Signal),
		})
	}()

	return nil
}

// exit reports the process as exited once. The report is delivered
// asynchronously, like a real SIGCHLD would be.
func (mock *sleepProcess) exit(status ExitStatus) bool {
	var exited bool

	mock.once.Do(func() {
		exited = true
		close(mock.stop)

		mock.host.mu.Lock()
		delete(mock.host.procs, mock.pid)
		mock.host.mu.Unlock()

		go func() { mock.host.exits <- status }()
	})

	return exited
}
