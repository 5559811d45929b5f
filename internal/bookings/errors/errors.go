package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid ID format")

	ErrVehicleNotFound = errors.New("vehicle not found")

	ErrUserNotFound = errors.New("user not found")

	// ErrStatusChanged means a conditional status update matched no document
	// because another writer already moved the booking out of the expected status.
	ErrStatusChanged = errors.New("booking status changed concurrently")

	ErrDuplicateRegistration = errors.New("registration number already exists")

	ErrDuplicateEmail = errors.New("email already exists")

	ErrLockHeld = errors.New("vehicle lock is held by another request")
)
