package initmon

import (
	"reflect"
	"sync"
	"testing"
)

// mockJournal is an in-memory storage of journals, primarily used for testing.
// A zero-value instance is a valid instance.
type mockJournal struct {
	mutex    sync.Mutex
	journals []Event
}

var _ Journaler = (*mockJournal)(nil)

// Write appends a journal event into the internal store.
func (m *mockJournal) Write(ev Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.journals = append(m.journals, ev)
	return nil
}

// Journals returns a copy of the events not yet consumed by Verify.
func (m *mockJournal) Journals() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]Event(nil), m.journals...)
}

// Reset drops every event written so far.
func (m *mockJournal) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.journals = nil
}

// Contains returns true if an event equal to ev has not been consumed yet.
func (m *mockJournal) Contains(ev Event) bool {
	for _, journal := range m.Journals() {
		if reflect.DeepEqual(journal, ev) {
			return true
		}
	}
	return false
}

// Verify verifies that the given journals slice is equal to the one stored
// internally. If strict is true, then a length check is performed, otherwise,
// the unmatched events are returned.
//
// Consecutive calls to Verify will match the remaining unmatched events.
func (m *mockJournal) Verify(t *testing.T, strict bool, journals []Event) []Event {
	t.Helper()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if strict && len(journals) != len(m.journals) {
		t.Errorf("mismatch journal length, got %d, expected %d", len(m.journals), len(journals))
		for i, ev := range m.journals {
			t.Logf("journal %d: %#v", i, ev)
		}
		return nil
	}

	if len(journals) > len(m.journals) {
		t.Errorf("journal too short, got %d, expected at least %d", len(m.journals), len(journals))
		for i, ev := range m.journals {
			t.Logf("journal %d: %#v", i, ev)
		}
		return nil
	}

	for i, ev := range journals {
		if !reflect.DeepEqual(m.journals[i], ev) {
			t.Errorf("journal %d mismatch, got %#v, expected %#v", i, m.journals[i], ev)
		}
	}

	m.journals = m.journals[len(journals):]
	return m.journals
}
