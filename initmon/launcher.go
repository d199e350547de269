package initmon

import (
	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"github.com/pkg/errors"
)

// Launcher starts children into slots of a Table.
type Launcher struct {
	host  exec.Host
	table *Table
	j     Journaler
}

// NewLauncher creates a new Launcher.
func NewLauncher(host exec.Host, table *Table, j Journaler) *Launcher {
	return &Launcher{
		host:  host,
		table: table,
		j:     j,
	}
}

// Launch starts the child described by spec and records it in slot. If the
// process cannot be created, or slot or spec is invalid, the failure is
// journaled and the slot is left empty; it is not retried.
//
// A child that is created but then fails to open its redirections or to exec
// its command still counts as started: it exits on its own shortly after, and
// the supervisor restarts it like any other exit.
func (l *Launcher) Launch(slot int, spec ChildSpec) error {
	if slot < 0 || slot >= l.table.Cap() {
		err := errors.Errorf("slot %d out of range", slot)
		l.spawnError(slot, spec, err)
		return err
	}

	if err := spec.Validate(); err != nil {
		l.table.Clear(slot)
		l.spawnError(slot, spec, err)
		return errors.Wrapf(err, "invalid child %d", slot)
	}

	proc, err := l.host.Start(spec.command(slot))
	if err != nil {
		l.table.Clear(slot)
		l.spawnError(slot, spec, err)
		return errors.Wrapf(err, "failed to start child %d", slot)
	}

	l.table.Set(slot, proc)
	l.j.Write(&EventChildStarted{
		Slot:    slot,
		PID:     proc.PID(),
		Command: spec.Command,
	})

	return nil
}

func (l *Launcher) spawnError(slot int, spec ChildSpec, err error) {
	l.j.Write(&EventChildSpawnError{
		Slot:    slot,
		Command: spec.Command,
		Reason:  err.Error(),
	})
}
