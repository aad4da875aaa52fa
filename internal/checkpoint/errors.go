package checkpoint

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors, matched with errors.Is through PersistenceError.
var (
	ErrExists           = errors.New("checkpoint already exists")
	ErrNotFound         = errors.New("no checkpoint found")
	ErrChecksumMismatch = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic     = errors.New("invalid magic bytes")
	ErrUnsupported      = errors.New("unsupported checkpoint format")
)

// PersistenceError reports a failed checkpoint read or write.
type PersistenceError struct {
	Op   string // "save", "restore", "list", "index"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}
