package store

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrCorrupted     = errors.New("corrupted value")
	ErrInvalidKey    = fmt.Errorf("%w: key must be a non-empty string", domain.ErrValidation)
	ErrValueTooLarge = fmt.Errorf("%w: value exceeds size limit", domain.ErrValidation)
	ErrQuotaExceeded = domain.ErrQuotaExceeded
)
