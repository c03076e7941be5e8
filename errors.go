package conduct

import "errors"

var (
	// Validation errors. Rejected synchronously, never enqueued.
	ErrInvalidSpec     = errors.New("conduct: invalid job spec")
	ErrInvalidSchedule = errors.New("conduct: invalid schedule config")

	// Not found errors.
	ErrJobNotFound      = errors.New("conduct: job not found")
	ErrScheduleNotFound = errors.New("conduct: schedule not found")
	ErrBatchNotFound    = errors.New("conduct: batch not found")

	// Conflict errors.
	ErrJobAlreadyExists  = errors.New("conduct: job already exists")
	ErrJobTerminal       = errors.New("conduct: job already terminal")
	ErrDuplicateSchedule = errors.New("conduct: duplicate schedule")

	// Provider errors.
	ErrUnknownProvider     = errors.New("conduct: unknown provider")
	ErrProviderUnavailable = errors.New("conduct: provider unavailable")
	ErrInvalidRequest      = errors.New("conduct: provider rejected request")

	// Dispatch errors.
	ErrDeadlineExceeded   = errors.New("conduct: provider deadline exceeded")
	ErrMaxRetriesExceeded = errors.New("conduct: max retries exceeded")

	// Store errors.
	ErrNoStore     = errors.New("conduct: no store configured")
	ErrStoreClosed = errors.New("conduct: store closed")
)
