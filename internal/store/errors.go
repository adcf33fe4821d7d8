package store

import "strings"

// IsBusy reports a SQLITE_BUSY error, raised when another connection holds
// the database lock.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLocked reports a "database is locked" error.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsConflict reports either SQLite concurrency error. Both are transient and
// worth a retry.
func IsConflict(err error) bool {
	return IsBusy(err) || IsLocked(err)
}
