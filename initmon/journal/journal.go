// Package journal provides implementations of initmon's Journaler interface
// that write to files. It also provides a file locking abstraction so that
// only one initmon instance can run with the same journal file.
package journal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// multiWriter combines multiple journalers.
type multiWriter struct {
	writers []initmon.Journaler
}

// MultiWriter creates a journaler that writes to multiple other journalers.
func MultiWriter(ws ...initmon.Journaler) initmon.Journaler {
	return &multiWriter{ws}
}

// Write writes the event into every journaler, even if one fails. The first
// error is returned.
func (w *multiWriter) Write(event initmon.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// FileLockJournaler is a journaler that uses a file lock (flock) to lock the
// given file and appends to it. The FileLockJournaler instance must be closed
// by the caller or by the operating system when the application exits.
//
// The file is opened with O_SYNC, so an event is on disk by the time Write
// returns.
//
// # Reading the Journal
//
// The caller does not need to acquire a file lock in order to read the written
// journal, as each Write operation performed on the file is a single append.
// Use Reader or ReadPreviousStateFromFile on JSON journals.
type FileLockJournaler struct {
	initmon.Journaler
	f *os.File
	l *flock.Flock
}

// ErrLockedElsewhere is returned if the file lock is held by another process.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// NewFileLockJournaler creates a new JSON journal if it can acquire a flock on
// the path. It returns an error if it fails to acquire the lock.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path, wrapJSON)
}

// NewFileLockJournalerWait creates a new JSON journal but waits until the lock
// can be acquired or until the context times out.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path, wrapJSON)
}

// NewFileLockLogger is like NewFileLockJournaler, except the file is written
// as a plain text log using HumanWriter.
func NewFileLockLogger(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path, wrapHuman)
}

// NewFileLockLoggerWait is like NewFileLockLogger, but it waits for the lock
// like NewFileLockJournalerWait.
func NewFileLockLoggerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path, wrapHuman)
}

func wrapJSON(w io.Writer) initmon.Journaler  { return NewWriter(w) }
func wrapHuman(w io.Writer) initmon.Journaler { return NewHumanWriter(w) }

func newFileLockJournaler(
	ctx context.Context, path string, wrap func(io.Writer) initmon.Journaler) (*FileLockJournaler, error) {

	// Ensure the directory exists.
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	l := flock.New(path)

	var locked bool
	var err error

	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		return nil, ErrLockedElsewhere
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		l.Unlock()
		return nil, errors.Wrap(err, "failed to open file")
	}

	return &FileLockJournaler{
		Journaler: wrap(f),
		f:         f,
		l:         l,
	}, nil
}

// File returns the underlying file. Children may inherit it to write into the
// journal themselves.
func (f *FileLockJournaler) File() *os.File {
	return f.f
}

// Close closes the file and releases the flock.
func (f *FileLockJournaler) Close() error {
	f.f.Close()
	return f.l.Unlock()
}
