package initmon

import "fmt"

// eventType describes an event type.
type eventType = string

const (
	eventWarning            eventType = "warning"
	eventDaemonStarted      eventType = "daemon started"
	eventDaemonStopped      eventType = "daemon stopped"
	eventConfigLoaded       eventType = "config loaded"
	eventConfigWarning      eventType = "config warning"
	eventConfigChanged      eventType = "config changed"
	eventReloadRequested    eventType = "reload requested"
	eventReloadFailed       eventType = "reload failed"
	eventTerminateRequested eventType = "terminate requested"
	eventChildStarted       eventType = "child started"
	eventChildSpawnError    eventType = "child spawn error"
	eventChildLaunchFailed  eventType = "child launch failed"
	eventChildExited        eventType = "child exited"
	eventChildStopped       eventType = "child stopped"
	eventUnknownExit        eventType = "unknown exit"
)

// Event is an interface describing known events. String returns the plain
// log message for the event.
type Event interface {
	Type() string
	String() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventDaemonStarted:
		return &EventDaemonStarted{}
	case eventDaemonStopped:
		return &EventDaemonStopped{}
	case eventConfigLoaded:
		return &EventConfigLoaded{}
	case eventConfigWarning:
		return &EventConfigWarning{}
	case eventConfigChanged:
		return &EventConfigChanged{}
	case eventReloadRequested:
		return &EventReloadRequested{}
	case eventReloadFailed:
		return &EventReloadFailed{}
	case eventTerminateRequested:
		return &EventTerminateRequested{}
	case eventChildStarted:
		return &EventChildStarted{}
	case eventChildSpawnError:
		return &EventChildSpawnError{}
	case eventChildLaunchFailed:
		return &EventChildLaunchFailed{}
	case eventChildExited:
		return &EventChildExited{}
	case eventChildStopped:
		return &EventChildStopped{}
	case eventUnknownExit:
		return &EventUnknownExit{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

func (ev *EventWarning) String() string {
	return fmt.Sprintf("Warning (%s): %s", ev.Component, ev.Error)
}

// EventDaemonStarted is emitted once when the supervisor starts. Every run
// gets a new RunID.
type EventDaemonStarted struct {
	PID    int    `json:"pid"`
	RunID  string `json:"run_id"`
	Config string `json:"config"`
}

func (ev *EventDaemonStarted) Type() string { return eventDaemonStarted }
func (ev *EventDaemonStarted) event()       {}

func (ev *EventDaemonStarted) String() string {
	return fmt.Sprintf("Daemon started: PID %d, config %s", ev.PID, ev.Config)
}

// EventDaemonStopped is emitted after every child has been stopped on
// shutdown.
type EventDaemonStopped struct{}

func (ev *EventDaemonStopped) Type() string   { return eventDaemonStopped }
func (ev *EventDaemonStopped) String() string { return "initmon ended" }
func (ev *EventDaemonStopped) event()         {}

// EventConfigLoaded is emitted when a configuration file is loaded.
type EventConfigLoaded struct {
	Path     string `json:"path"`
	Children int    `json:"children"`
	Skipped  int    `json:"skipped"`
}

func (ev *EventConfigLoaded) Type() string { return eventConfigLoaded }
func (ev *EventConfigLoaded) event()       {}

func (ev *EventConfigLoaded) String() string {
	return fmt.Sprintf("Loaded config %s: %d children, %d lines skipped", ev.Path, ev.Children, ev.Skipped)
}

// EventConfigWarning is emitted for every skipped configuration line.
type EventConfigWarning struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (ev *EventConfigWarning) Type() string { return eventConfigWarning }
func (ev *EventConfigWarning) event()       {}

func (ev *EventConfigWarning) String() string {
	return fmt.Sprintf("Config %s line %d skipped: %s", ev.Path, ev.Line, ev.Reason)
}

// EventConfigChanged is emitted by the Watcher when the configuration file
// changes on disk.
type EventConfigChanged struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

func (ev *EventConfigChanged) Type() string { return eventConfigChanged }
func (ev *EventConfigChanged) event()       {}

func (ev *EventConfigChanged) String() string {
	return fmt.Sprintf("Config %s changed (%s)", ev.Path, ev.Op)
}

// EventReloadRequested is emitted when the supervisor starts handling a
// reload request.
type EventReloadRequested struct {
	Path string `json:"path"`
}

func (ev *EventReloadRequested) Type() string { return eventReloadRequested }
func (ev *EventReloadRequested) event()       {}

func (ev *EventReloadRequested) String() string {
	return "Received reload request, reloading config and restarting children"
}

// EventReloadFailed is emitted when the new configuration cannot be loaded.
// The old configuration and its children are kept.
type EventReloadFailed struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (ev *EventReloadFailed) Type() string { return eventReloadFailed }
func (ev *EventReloadFailed) event()       {}

func (ev *EventReloadFailed) String() string {
	return fmt.Sprintf("Reload of %s failed, keeping old config: %s", ev.Path, ev.Reason)
}

// EventTerminateRequested is emitted when the supervisor starts shutting down.
type EventTerminateRequested struct{}

func (ev *EventTerminateRequested) Type() string { return eventTerminateRequested }
func (ev *EventTerminateRequested) event()       {}

func (ev *EventTerminateRequested) String() string {
	return "Received terminate request, ending all processes"
}

// EventChildStarted is emitted when a child process has been created.
type EventChildStarted struct {
	Slot    int    `json:"slot"`
	PID     int    `json:"pid"`
	Command string `json:"command"`
}

func (ev *EventChildStarted) Type() string { return eventChildStarted }
func (ev *EventChildStarted) event()       {}

func (ev *EventChildStarted) String() string {
	return fmt.Sprintf("Started child %d: PID %d", ev.Slot, ev.PID)
}

// EventChildSpawnError is emitted when a child process cannot be created at
// all. The slot stays empty until the next reload.
type EventChildSpawnError struct {
	Slot    int    `json:"slot"`
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

func (ev *EventChildSpawnError) Type() string { return eventChildSpawnError }
func (ev *EventChildSpawnError) event()       {}

func (ev *EventChildSpawnError) String() string {
	return fmt.Sprintf("Failed to start child %d: %s", ev.Slot, ev.Reason)
}

// EventChildLaunchFailed is written by the child itself when it was created
// but could not open its redirections or exec its command. The child exits
// with status 1 afterwards.
type EventChildLaunchFailed struct {
	Slot   int    `json:"slot"`
	PID    int    `json:"pid"`
	Reason string `json:"reason"`
}

func (ev *EventChildLaunchFailed) Type() string { return eventChildLaunchFailed }
func (ev *EventChildLaunchFailed) event()       {}

func (ev *EventChildLaunchFailed) String() string {
	return fmt.Sprintf("%s, ended process cpid: %d", ev.Reason, ev.PID)
}

// EventChildExited is emitted when a child exits on its own.
type EventChildExited struct {
	Slot       int    `json:"slot"`
	PID        int    `json:"pid"`
	ExitCode   int    `json:"exit_code"` // -1 if killed by a signal
	Signal     string `json:"signal,omitempty"`
	Restarting bool   `json:"restarting"`
}

func (ev *EventChildExited) Type() string { return eventChildExited }
func (ev *EventChildExited) event()       {}

func (ev *EventChildExited) String() string {
	s := fmt.Sprintf("Child %d (PID %d) exited", ev.Slot, ev.PID)
	if ev.Signal != "" {
		s += " by signal " + ev.Signal
	} else {
		s += fmt.Sprintf(" with status %d", ev.ExitCode)
	}
	if ev.Restarting {
		s += ", restarting"
	}
	return s
}

// EventChildStopped is emitted when a child exits after initmon asked it to,
// on reload or shutdown.
type EventChildStopped struct {
	Slot     int    `json:"slot"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
}

func (ev *EventChildStopped) Type() string { return eventChildStopped }
func (ev *EventChildStopped) event()       {}

func (ev *EventChildStopped) String() string {
	if ev.Signal != "" {
		return fmt.Sprintf("Child %d (PID %d) exited by signal %s", ev.Slot, ev.PID, ev.Signal)
	}
	return fmt.Sprintf("Child %d (PID %d) stopped with status %d", ev.Slot, ev.PID, ev.ExitCode)
}

// EventUnknownExit is emitted when a process that is not in the table exits,
// such as an orphan reparented to initmon.
type EventUnknownExit struct {
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (ev *EventUnknownExit) Type() string { return eventUnknownExit }
func (ev *EventUnknownExit) event()       {}

func (ev *EventUnknownExit) String() string {
	if ev.Error != "" {
		return "Wait for children failed: " + ev.Error
	}
	return fmt.Sprintf("Unknown process (PID %d) exited with status %d", ev.PID, ev.ExitCode)
}
