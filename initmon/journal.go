package initmon

import "time"

// Journaler describes an event logger. Implementations must be safe for
// concurrent use.
type Journaler interface {
	Write(Event) error
}

// JournalReader describes a journal that can be read from the latest event
// backwards. Read returns io.EOF once the oldest event has been read.
type JournalReader interface {
	Read() (Event, time.Time, error)
}

