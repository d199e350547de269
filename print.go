package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon"
)

func printStatus(w io.Writer, st *initmon.PreviousState) {
	state := "running"
	if st.Stopped {
		state = "stopped"
	}

	fmt.Fprintf(w, "run %s: %s (PID %d)\n", st.RunID, state, st.PID)
	fmt.Fprintf(w, "config %s\n", st.Config)
	if !st.Started.IsZero() {
		fmt.Fprintf(w, "started %s\n", st.Started.Format(time.RFC3339))
	}

	rows := [][]string{{"SLOT", "PID", "STATE", "RESTARTS", "COMMAND"}}
	for _, slot := range st.Slots {
		state := "exited"
		if slot.Running {
			state = "running"
		}

		rows = append(rows, []string{
			strconv.Itoa(slot.Slot),
			strconv.Itoa(slot.PID),
			state,
			strconv.Itoa(slot.Restarts),
			slot.Command,
		})
	}

	printTable(w, rows)
}

// printTable prints rows as a bordered table, the first row being the header.
func printTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = maxInt(widths[i], len(cell))
		}
	}

	var sep strings.Builder
	sep.WriteByte('+')
	for _, width := range widths {
		sep.WriteString(strings.Repeat("-", width+2))
		sep.WriteByte('+')
	}

	fmt.Fprintln(w, sep.String())
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = pad(cell, widths[j])
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))

		if i == 0 {
			fmt.Fprintln(w, sep.String())
		}
	}
	fmt.Fprintln(w, sep.String())
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
