package exec

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// ShimName is the argv[0] given to the launch shim. A binary using NewHost
// must check IsShim first thing in main and call RunShim if it's true.
const ShimName = "initmon-launch"

// IsShim returns true if the current process was started by Host.Start as a
// launch shim.
func IsShim() bool {
	return len(os.Args) > 0 && filepath.Base(os.Args[0]) == ShimName
}

// ShimReporter is called by RunShim when the child cannot be started. w is the
// report file given in HostOptions, or stderr if there is none.
type ShimReporter func(w io.Writer, slot int, err error)

// RunShim runs the child side of the launch protocol. The arguments are
// os.Args[1:] as built by Host.Start. It never returns: on success the process
// image is replaced, and on failure it reports the error and exits with status
// 1.
func RunShim(args []string, report ShimReporter) {
	var w io.Writer = os.Stderr
	slot := -1

	err := func() error {
		if len(args) < 6 {
			return errors.New("launch shim: missing arguments")
		}

		fd, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "launch shim: invalid report fd")
		}
		if fd > 2 {
			w = os.NewFile(uintptr(fd), "report")
		}

		if slot, err = strconv.Atoi(args[1]); err != nil {
			return errors.Wrap(err, "launch shim: invalid slot")
		}

		return shim(fd, args[2], args[3], args[4], args[5:])
	}()

	report(w, slot, err)
	os.Exit(1)
}
