package kanban

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidOrder = errors.New("ordering must list every item exactly once")
	ErrDuplicateTag = errors.New("tag name already exists in this sub-account")
)

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}
