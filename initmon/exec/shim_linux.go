package exec

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// shim redirects the standard streams and execs path. It only returns on
// failure.
func shim(reportFD int, stdin, stdout, path string, argv []string) error {
	in, err := unix.Open(stdin, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open input file %s", stdin)
	}

	out, err := unix.Open(stdout, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open output file %s", stdout)
	}

	if err := redirect(in, unix.Stdin); err != nil {
		return errors.Wrap(err, "failed to redirect standard input")
	}
	if err := redirect(out, unix.Stdout); err != nil {
		return errors.Wrap(err, "failed to redirect standard output")
	}

	// The report file is initmon's; the program must not inherit it.
	if reportFD > 2 {
		unix.CloseOnExec(reportFD)
	}

	err = unix.Exec(path, argv, os.Environ())
	return errors.Wrapf(err, "failed to exec %s", path)
}

// redirect makes fd available as target across exec.
func redirect(fd, target int) error {
	if fd == target {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0)
		return err
	}

	if err := unix.Dup3(fd, target, 0); err != nil {
		return err
	}

	return unix.Close(fd)
}
