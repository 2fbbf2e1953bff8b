package application

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrInvalidOutlet        = errors.New("invalid outlet slug")
	ErrInvalidStatus        = errors.New("invalid status value")
	ErrSubscriptionInactive = errors.New("subscription inactive or not found")
	ErrFreePlan             = errors.New("upgrade to a paid plan to place orders")
	ErrValidation           = errors.New("missing required fields")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
