package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon"
	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
)

// Reader reads a JSON journal written by Writer from the latest event
// backwards.
type Reader struct {
	b *backwardio.Scanner
}

var _ initmon.JournalReader = (*Reader)(nil)

// NewReader creates a new journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read reads a single entry, starting from the end of the file. An EOF error
// is returned if the file has been fully consumed.
func (r *Reader) Read() (initmon.Event, time.Time, error) {
	line, err := readLine(r.b)
	if err != nil {
		return nil, time.Time{}, err
	}

	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode JSON")
	}

	event := initmon.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, fmt.Errorf("unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}

// readLine returns the previous non-empty line.
func readLine(b *backwardio.Scanner) ([]byte, error) {
	for {
		line, err := b.ReadUntil('\n')
		if err != nil {
			return nil, err
		}
		if len(line) > 0 {
			return line, nil
		}
	}
}

// ReadPreviousStateFromFile reads the PreviousState from the given file path.
func ReadPreviousStateFromFile(path string) (*initmon.PreviousState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadPreviousState(f)
}

// ReadPreviousState reads backwards the given reader to return the
// PreviousState.
func ReadPreviousState(r io.ReadSeeker) (*initmon.PreviousState, error) {
	return initmon.ReadPreviousState(NewReader(r))
}
