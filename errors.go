package verdict

import (
	"errors"
	"fmt"
)

// Common errors returned by the verdict client.
var (
	// ErrNotFound is returned when an outcome is not found.
	ErrNotFound = errors.New("outcome not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidOutcome is returned when an outcome record fails validation.
	ErrInvalidOutcome = errors.New("invalid decision outcome")

	// ErrUnknownConfigKey is returned when a configuration update names a key
	// that is not part of the tunable surface.
	ErrUnknownConfigKey = errors.New("unknown configuration key")

	// ErrUnknownCapability is returned when a capability id is not registered.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrNoCandidates is returned by a plan that has no capability left to try.
	ErrNoCandidates = errors.New("no capability candidates remaining")

	// ErrSessionRefNotFound is returned when a session reference cannot be resolved.
	ErrSessionRefNotFound = errors.New("session reference not found")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// CapabilityError wraps a failure raised by a reasoning capability.
// Extractable via errors.As(). Supports Unwrap().
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
