package service

import (
	"errors"
	"fmt"

	"github.com/Dan9191/cobranca-service/internal/repository"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

var (
	// ErrValidation marks caller input errors; nothing was written
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated means the request carries no valid user
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials is returned by Login for a wrong email or password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden means the resource belongs to another user
	ErrForbidden = errors.New("access denied")
	// ErrNotFound means the resource does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict means the request clashes with existing state
	ErrConflict = errors.New("conflict")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr translates repository and schedule errors into service errors
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, schedule.ErrInvalidPlan):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}
