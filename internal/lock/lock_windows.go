//go:build windows

package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Acquire creates dir/LOCK exclusively. An existing file means the directory
// is held, including by a process that died without releasing it.
func Acquire(dir string) (*DirLock, error) {
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	return &DirLock{f: f}, nil
}

// Release closes and removes the lock file.
func (l *DirLock) Release() error {
	name := l.f.Name()
	if err := l.f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
