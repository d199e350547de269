// Package initmon is the core of the initmon daemon, a small init-style
// supervisor that keeps a fixed list of programs running.
//
// # Slots
//
// Every line of the configuration file describes one child and is given a
// slot, which is its index among the valid lines. A slot is the identity of a
// child across restarts: when the child behind slot 2 exits, slot 2 is started
// again with the same ChildSpec, and the Table is updated with the new PID.
//
// # The Supervisor Goroutine
//
// All state (the Table and the current Snapshot) is owned by the goroutine
// running Supervisor.Run. Everything else talks to it over channels: the
// process host publishes exits, and signals or the configuration watcher
// queue Requests. A request is handled to completion before the next one is
// read, so a SIGTERM arriving in the middle of a reload waits for the reload
// to finish.
//
// Stopping children is cooperative. A child is sent SIGTERM and the
// supervisor then waits for it to exit for as long as it takes; there is no
// SIGKILL escalation.
//
// # Restarting
//
// A child is restarted immediately after it is reaped. There is no backoff,
// so a child that can never start (for example, because its input file is
// missing) is restarted in a tight loop until the configuration is fixed and
// reloaded.
package initmon
