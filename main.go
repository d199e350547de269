package main

import (
	"fmt"
	"io"
	"os"

	"git.unix.lgbt/diamondburned/initmon/initmon"
	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"git.unix.lgbt/diamondburned/initmon/initmon/journal"
)

func main() {
	// We might be a child that hasn't exec'd its program yet.
	if exec.IsShim() {
		exec.RunShim(os.Args[1:], reportLaunchFailure)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// reportLaunchFailure writes the shim's failure into the log inherited from
// the daemon.
func reportLaunchFailure(w io.Writer, slot int, err error) {
	journal.NewHumanWriter(w).Write(&initmon.EventChildLaunchFailed{
		Slot:   slot,
		PID:    os.Getpid(),
		Reason: err.Error(),
	})
}
