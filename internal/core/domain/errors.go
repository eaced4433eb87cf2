package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks files that vanished before a stage began.
	ErrNotFound = errors.New("file not found")
	// ErrIO marks copy/move/read failures that abort an item's remaining stages.
	ErrIO = errors.New("io failure")
	// ErrIntegrity marks a source/backup hash mismatch.
	ErrIntegrity = errors.New("backup integrity failure")
	// ErrCapability marks failures raised by external capability adapters.
	ErrCapability = errors.New("capability failure")
	// ErrConfiguration marks invalid wiring; fatal at construction time.
	ErrConfiguration = errors.New("configuration failure")
	// ErrTemporary marks transient resource exhaustion worth one retry
	// inside a capability adapter. The pipeline itself never retries.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
