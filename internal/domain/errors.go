package domain

import "errors"

// Error kinds shared by every component. Packages wrap these so callers can
// classify failures with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrTransientIO   = errors.New("transient io error")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrTimeout       = errors.New("timeout")
	ErrAIService     = errors.New("ai service error")
)
