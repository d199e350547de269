package initmon

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"syscall"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"github.com/pkg/errors"
)

const forever time.Duration = math.MaxInt64

const testConfig = `/bin/cat in.txt out.txt
/bin/sleep
/bin/echo hello world in2.txt out2.txt
`

func TestSupervisor(t *testing.T) {
	t.Run("startup", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)

		pids := waitPIDs(t, s, []int{1, 2, 0, 0})
		if s.State() != StateRunning {
			t.Errorf("state = %v, expected running", s.State())
		}

		j.Verify(t, true, []Event{
			&EventDaemonStarted{PID: os.Getpid(), RunID: s.RunID, Config: s.path},
			&EventConfigWarning{Path: s.path, Line: 2, Reason: "invalid config line: need at least 3 fields, got 1"},
			&EventConfigLoaded{Path: s.path, Children: 2, Skipped: 1},
			&EventChildStarted{Slot: 0, PID: pids[0], Command: "/bin/cat"},
			&EventChildStarted{Slot: 1, PID: pids[1], Command: "/bin/echo"},
		})

		expect := []exec.Command{
			{Slot: 0, Path: "/bin/cat", Args: []string{"/bin/cat"}, Stdin: "in.txt", Stdout: "out.txt"},
			{Slot: 1, Path: "/bin/echo", Args: []string{"/bin/echo", "hello", "world"}, Stdin: "in2.txt", Stdout: "out2.txt"},
		}
		if started := host.Started(); !reflect.DeepEqual(started, expect) {
			t.Errorf("started %#v, expected %#v", started, expect)
		}
	})

	t.Run("autorestart", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})

		for i := 0; i < 5; i++ {
			old := s.PIDs()[0]
			if !host.Exit(old, i) {
				t.Fatalf("process %d is not running", old)
			}

			pids := waitFor(t, s, func(pids []int) bool { return pids[0] != old && pids[0] != 0 })
			if pids[1] != 2 {
				t.Errorf("slot 1 changed to PID %d", pids[1])
			}

			if !j.Contains(&EventChildExited{Slot: 0, PID: old, ExitCode: i, Restarting: true}) {
				t.Errorf("missing exit event for PID %d", old)
			}
			if !j.Contains(&EventChildStarted{Slot: 0, PID: pids[0], Command: "/bin/cat"}) {
				t.Errorf("missing start event for PID %d", pids[0])
			}
		}

		if n := len(host.Started()); n != 7 {
			t.Errorf("started %d processes, expected 7", n)
		}
	})

	t.Run("unknown exit", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})

		host.Inject(exec.ExitStatus{PID: 1234, Code: 0})

		ev := &EventUnknownExit{PID: 1234}
		waitJournal(t, j, ev)
		waitPIDs(t, s, []int{1, 2, 0, 0})
	})

	t.Run("spawn error", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		host.StartError = func(cmd exec.Command) error {
			if cmd.Path == "/bin/echo" {
				return errors.New("resource temporarily unavailable")
			}
			return nil
		}
		runSupervisor(t, s)

		waitPIDs(t, s, []int{1, 0, 0, 0})
		waitJournal(t, j, &EventChildSpawnError{
			Slot:    1,
			Command: "/bin/echo",
			Reason:  "resource temporarily unavailable",
		})

		// Other exits are still restarted, but the failed slot is not retried.
		host.Exit(1, 1)
		waitFor(t, s, func(pids []int) bool { return pids[0] == 2 })

		if n := len(host.Started()); n != 2 {
			t.Errorf("started %d processes, expected 2", n)
		}
	})

	t.Run("reload", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})
		j.Reset()

		writeConfig(t, s.path, "/bin/yes y.in y.out\n/bin/true t.in t.out\n/bin/false f.in f.out\n")
		if !s.Reload() {
			t.Fatal("supervisor stopped")
		}

		// PIDs is handled after the reload is done.
		waitPIDs(t, s, []int{3, 4, 5, 0})

		j.Verify(t, true, []Event{
			&EventReloadRequested{Path: s.path},
			&EventConfigLoaded{Path: s.path, Children: 3},
			&EventChildStopped{Slot: 0, PID: 1, ExitCode: -1, Signal: "SIGTERM"},
			&EventChildStopped{Slot: 1, PID: 2, ExitCode: -1, Signal: "SIGTERM"},
			&EventChildStarted{Slot: 0, PID: 3, Command: "/bin/yes"},
			&EventChildStarted{Slot: 1, PID: 4, Command: "/bin/true"},
			&EventChildStarted{Slot: 2, PID: 5, Command: "/bin/false"},
		})

		if snap := s.Snapshot(); len(snap.Children) != 3 {
			t.Errorf("snapshot has %d children, expected 3", len(snap.Children))
		}

		running := host.Running()
		sort.Ints(running)
		if !reflect.DeepEqual(running, []int{3, 4, 5}) {
			t.Errorf("running %v, expected [3 4 5]", running)
		}
	})

	t.Run("reload failure", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})
		j.Reset()

		if err := os.Remove(s.path); err != nil {
			t.Fatal("failed to remove config:", err)
		}

		_, openErr := os.Open(s.path)

		s.Reload()
		waitPIDs(t, s, []int{1, 2, 0, 0})

		j.Verify(t, true, []Event{
			&EventReloadRequested{Path: s.path},
			&EventReloadFailed{Path: s.path, Reason: "failed to open config file: " + openErr.Error()},
		})

		if n := len(host.Running()); n != 2 {
			t.Errorf("%d processes running, expected 2", n)
		}
		if s.State() != StateRunning {
			t.Errorf("state = %v, expected running", s.State())
		}
	})

	t.Run("terminate", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		errCh := runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})
		j.Reset()

		if !s.Terminate() {
			t.Fatal("supervisor stopped")
		}

		if err := waitRun(t, errCh); err != nil {
			t.Fatal("Run returned error:", err)
		}

		j.Verify(t, true, []Event{
			&EventTerminateRequested{},
			&EventChildStopped{Slot: 0, PID: 1, ExitCode: -1, Signal: "SIGTERM"},
			&EventChildStopped{Slot: 1, PID: 2, ExitCode: -1, Signal: "SIGTERM"},
			&EventDaemonStopped{},
		})

		if running := host.Running(); len(running) != 0 {
			t.Errorf("processes %v still running", running)
		}
		if s.State() != StateStopped {
			t.Errorf("state = %v, expected stopped", s.State())
		}
		if pids := s.PIDs(); pids != nil {
			t.Errorf("PIDs returned %v after Run", pids)
		}
		if s.Reload() {
			t.Error("Reload accepted after Run")
		}
	})

	t.Run("terminate waits", func(t *testing.T) {
		s, host, j := newTestSupervisor(t, testConfig)
		host.Delay = forever
		errCh := runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})
		j.Reset()

		s.Terminate()

		// Slot 1 exits on its own while slot 0 is being waited for.
		host.Exit(2, 3)
		waitJournal(t, j, &EventChildExited{Slot: 1, PID: 2, ExitCode: 3})

		select {
		case <-errCh:
			t.Fatal("Run returned before slot 0 exited")
		default:
		}

		host.Exit(1, 0)
		if err := waitRun(t, errCh); err != nil {
			t.Fatal("Run returned error:", err)
		}

		j.Verify(t, true, []Event{
			&EventTerminateRequested{},
			&EventChildExited{Slot: 1, PID: 2, ExitCode: 3},
			&EventChildStopped{Slot: 0, PID: 1, ExitCode: 0},
			&EventDaemonStopped{},
		})
	})

	t.Run("context canceled", func(t *testing.T) {
		s, host, _ := newTestSupervisor(t, testConfig)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- s.Run(ctx) }()

		waitPIDs(t, s, []int{1, 2, 0, 0})
		cancel()

		if err := waitRun(t, errCh); err != nil {
			t.Fatal("Run returned error:", err)
		}
		if running := host.Running(); len(running) != 0 {
			t.Errorf("processes %v still running", running)
		}
	})

	t.Run("missing config", func(t *testing.T) {
		host := exec.NewSleepHost()
		j := &mockJournal{}
		path := filepath.Join(t.TempDir(), "initmon.conf")

		s := NewSupervisor(path, 4, host, j)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{0, 0, 0, 0})

		// The supervisor keeps waiting for a config to appear.
		writeConfig(t, path, "/bin/cat in out\n")
		s.Reload()
		waitPIDs(t, s, []int{1, 0, 0, 0})
	})

	t.Run("run twice", func(t *testing.T) {
		s, _, _ := newTestSupervisor(t, testConfig)
		runSupervisor(t, s)
		waitPIDs(t, s, []int{1, 2, 0, 0})

		if err := s.Run(context.Background()); err == nil {
			t.Error("second Run did not fail")
		}
	})
}

func TestSignalRequest(t *testing.T) {
	type test struct {
		sig    os.Signal
		req    Request
		mapped bool
	}

	var tests = []test{
		{syscall.SIGHUP, RequestReload, true},
		{syscall.SIGTERM, RequestTerminate, true},
		{os.Interrupt, RequestTerminate, true},
		{os.Kill, 0, false},
	}

	for _, test := range tests {
		req, ok := SignalRequest(test.sig)
		if req != test.req || ok != test.mapped {
			t.Errorf("SignalRequest(%v) = (%v, %v), expected (%v, %v)", test.sig, req, ok, test.req, test.mapped)
		}
	}
}

func newTestSupervisor(t *testing.T, config string) (*Supervisor, *exec.SleepHost, *mockJournal) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "initmon.conf")
	writeConfig(t, path, config)

	host := exec.NewSleepHost()
	j := &mockJournal{}

	return NewSupervisor(path, 4, host, j), host, j
}

func writeConfig(t *testing.T, path, config string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(config), 0600); err != nil {
		t.Fatal("failed to write config:", err)
	}
}

// runSupervisor runs the supervisor in the background. It is terminated when
// the test ends.
func runSupervisor(t *testing.T, s *Supervisor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	t.Cleanup(func() {
		if s.Terminate() {
			<-errCh
		}
	})

	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

// waitFor polls the supervisor's table until cond returns true.
func waitFor(t *testing.T, s *Supervisor, cond func(pids []int) bool) []int {
	t.Helper()

	var pids []int
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		if pids = s.PIDs(); pids != nil && cond(pids) {
			return pids
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("timed out waiting for table, last PIDs: %v", pids)
	return nil
}

func waitPIDs(t *testing.T, s *Supervisor, expect []int) []int {
	t.Helper()
	return waitFor(t, s, func(pids []int) bool { return reflect.DeepEqual(pids, expect) })
}

func waitJournal(t *testing.T, j *mockJournal, ev Event) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j.Contains(ev) {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("timed out waiting for event %#v", ev)
}
