// Package daemon detaches the current process from its controlling terminal.
//
// Go cannot fork without exec, so the process is re-executed instead: the
// parent starts a copy of itself in a new session with its standard streams
// on /dev/null, then exits. The copy finds a marker in its environment and
// carries on as the daemon.
package daemon

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

// EnvMarker is set to "1" in the environment of the detached copy.
const EnvMarker = "INITMON_DAEMON"

// IsDaemon returns true if the current process is the detached copy.
func IsDaemon() bool {
	return os.Getenv(EnvMarker) == "1"
}

// Daemonize detaches the process. In the parent, it starts the detached copy
// with the same arguments and exits with status 0; it only returns on error.
// In the detached copy, it changes the working directory to / and returns.
//
// Relative paths must be made absolute before calling Daemonize in the copy.
func Daemonize() error {
	if IsDaemon() {
		// Don't pass the marker on to our children.
		os.Unsetenv(EnvMarker)

		if err := os.Chdir("/"); err != nil {
			return errors.Wrap(err, "failed to change working directory")
		}

		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to find own executable")
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "failed to open "+os.DevNull)
	}
	defer null.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvMarker+"=1")
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start daemon")
	}

	// The daemon is reparented to init once we exit.
	cmd.Process.Release()
	os.Exit(0)

	return nil
}
