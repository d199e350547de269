package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon"
	"github.com/pkg/errors"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time     `json:"time"`
	Type string        `json:"type"`
	Data initmon.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into the
// writer.
type Writer struct{ w io.Writer }

var _ initmon.Journaler = Writer{}

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) Writer {
	return Writer{w}
}

// Write writes the given event into the writer. Each event is written with a
// single Write call, so writes are atomic on files opened with O_APPEND.
func (l Writer) Write(ev initmon.Event) error {
	evJSON := Event{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	// Encode appends the new line.
	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	_, err := l.w.Write(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// HumanWriter is a journaler that writes each event as a timestamped plain
// text line.
type HumanWriter struct{ w io.Writer }

var _ initmon.Journaler = HumanWriter{}

// NewHumanWriter creates a new plain text journaler.
func NewHumanWriter(w io.Writer) HumanWriter {
	return HumanWriter{w}
}

// Write writes the given event as a single line.
func (l HumanWriter) Write(ev initmon.Event) error {
	buf := bytes.Buffer{}
	buf.Grow(128)

	buf.WriteString(time.Now().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(ev.String())
	buf.WriteByte('\n')

	_, err := l.w.Write(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "failed to write log line")
	}

	return nil
}
