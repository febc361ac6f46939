package utils

import (
	"fmt"
	"os"
)

// Indicates if the given path exists or not (works for both files and directories)
func PathExists(filepath string) bool {
	_, err := os.Stat(filepath)
	return err == nil
}

// PrepareDirectory creates dir when it is missing and create is set. An
// existing path is left alone; the datastore reports it if it is not a
// directory.
func PrepareDirectory(dir string, create bool) (created bool, err error) {
	if PathExists(dir) || !create {
		return false, nil
	}

	// 0 (special bit - ignored), 7 (rwx - owner), 5 (r-x - user group), 5 (r-x - others)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("create data directory: %w", err)
	}
	return true, nil
}
