// Package store resolves where verdict keeps its outcome databases.
package store

import (
	"errors"
	"regexp"
	"strings"
)

// Profile ID validation errors.
var (
	// ErrInvalidProfileID indicates the profile ID format is invalid.
	ErrInvalidProfileID = errors.New("invalid profile ID: must be lowercase alphanumeric with hyphens, 1-64 characters")
)

// profileIDRegex validates profile ID format.
// - lowercase alphanumeric and hyphens (a-z, 0-9, -)
// - 1-64 characters
// - no leading/trailing hyphens
var profileIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidateProfileID validates a profile ID.
// Returns ErrInvalidProfileID if the ID doesn't match the required pattern.
func ValidateProfileID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidProfileID
	}
	if strings.Contains(id, "--") {
		return ErrInvalidProfileID
	}
	if !profileIDRegex.MatchString(id) {
		return ErrInvalidProfileID
	}
	return nil
}
