// Package lock guards a datastore directory against a second concurrent
// owner with an advisory lock file.
package lock

import (
	"errors"
	"os"
)

// FileName is the lock file created inside the guarded directory.
const FileName = "LOCK"

// ErrLocked is returned when another owner already holds the directory.
var ErrLocked = errors.New("directory already in use by another datastore")

// DirLock is a held directory lock. The lock lives as long as the file
// handle stays open.
type DirLock struct {
	f *os.File
}

// Path returns the lock file's path.
func (l *DirLock) Path() string { return l.f.Name() }
