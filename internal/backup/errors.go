package backup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBackup is the only message shown for files that are neither a
	// valid plain payload nor a decryptable envelope. Wrong passwords and
	// corrupted files are deliberately indistinguishable.
	ErrInvalidBackup = errors.New("invalid password or corrupted file")

	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrEmptyPassword    = errors.New("password must not be empty")
	ErrPasswordRequired = errors.New("backup is encrypted; a password is required")
	ErrEmptySelection   = errors.New("selection does not fully cover any tile")
)

// InvalidBackupError carries a human-readable hint next to ErrInvalidBackup.
// It never wraps the underlying cryptographic error.
type InvalidBackupError struct {
	Hint string
}

func invalid(hint string) *InvalidBackupError {
	return &InvalidBackupError{Hint: hint}
}

func (e *InvalidBackupError) Error() string {
	return ErrInvalidBackup.Error()
}

func (e *InvalidBackupError) Is(target error) bool {
	return target == ErrInvalidBackup
}

// CollectionUnavailableError records a collection the snapshot reader skipped.
type CollectionUnavailableError struct {
	Collection string
	Err        error
}

func (e *CollectionUnavailableError) Error() string {
	return fmt.Sprintf("collection %s unavailable: %v", e.Collection, e.Err)
}

func (e *CollectionUnavailableError) Unwrap() error { return e.Err }

type CollectionFailure struct {
	Collection string
	Err        error
}

// PartialRestoreError reports every collection that failed to be replaced.
// The restore as a whole counts as failed even when others succeeded.
type PartialRestoreError struct {
	Restored []string
	Failures []CollectionFailure
}

func (e *PartialRestoreError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Collection, f.Err))
	}
	return fmt.Sprintf("restore failed for %d of %d collections (%s)",
		len(e.Failures), len(e.Failures)+len(e.Restored), strings.Join(parts, "; "))
}

// ConfirmPassword validates an export password and its confirmation before
// any cryptography runs.
func ConfirmPassword(password, confirm string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

func (e *PartialRestoreError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
