package ledger

import (
	"errors"
	"fmt"
)

// ErrStorageAccess matches every failure to open, lock, read or write the
// ledger file. Callers check it with errors.Is.
var ErrStorageAccess = errors.New("ledger storage unavailable")

// StorageError records the file operation that failed.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageAccess }

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
