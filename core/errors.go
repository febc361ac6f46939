package core

import (
	"errors"
	"fmt"

	"github.com/0xRadioAc7iv/caskdb/internal/record"
)

var (
	// ErrNonExistentDatastore is returned by Open when the directory is missing.
	ErrNonExistentDatastore = errors.New("datastore directory does not exist")

	// ErrNonDirectoryDatastore is returned by Open when the path is not a
	// directory.
	ErrNonDirectoryDatastore = errors.New("datastore path is not a directory")

	// ErrActiveFileCollision is returned when no unused name could be found for
	// a new active data file.
	ErrActiveFileCollision = errors.New("active data file name already exists")

	// ErrCorruptRecord is returned by Get when the stored record fails its
	// checksum. It is the same value as the record package's sentinel.
	ErrCorruptRecord = record.ErrCorruptRecord

	ErrDatastoreClosed = errors.New("datastore is closed")
	ErrDirectoryLocked = errors.New("datastore directory is locked by another instance")

	ErrEmptyKey      = errors.New("key must not be empty")
	ErrEmptyValue    = errors.New("value must not be empty")
	ErrKeyTooLarge   = errors.New("key exceeds maximum size")
	ErrValueTooLarge = errors.New("value exceeds maximum size")
)

// IOError wraps a failure of the underlying storage.
type IOError struct {
	Op   string // create, open, append, read, sync, close, recover, stat, lock
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
