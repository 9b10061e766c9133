package service

import (
	"errors"
	"fmt"

	"wellpath/internal/cache"
	"wellpath/internal/repository"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("belongs to another owner")
	ErrInterviewCompleted = errors.New("interview already completed")
	ErrBusy               = errors.New("interview is being updated, retry")
	ErrStorage            = errors.New("storage failure")
	ErrUpstream           = errors.New("reasoning service failure")
)

// ValidationError carries a reason the caller can act on
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// storageErr classifies an adapter failure. Lost compare-and-swap races and
// held locks surface as ErrBusy, everything else as ErrStorage.
func storageErr(op string, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, cache.ErrLockHeld) {
		return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
