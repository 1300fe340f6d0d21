package verdict_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hyperengineering/verdict"
)

func TestSentinelErrors_ErrorsIs(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
	}{
		{"ErrNotFound", verdict.ErrNotFound},
		{"ErrStoreClosed", verdict.ErrStoreClosed},
		{"ErrUnknownConfigKey", verdict.ErrUnknownConfigKey},
		{"ErrNoCandidates", verdict.ErrNoCandidates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("operation failed: %w", tt.sentinel)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(wrapped, %v) = false, want true", tt.sentinel)
			}
		})
	}
}

func TestValidationError_ErrorsAs(t *testing.T) {
	err := &verdict.ValidationError{Field: "Escalation.Budget", Message: "must be positive"}

	var ve *verdict.ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("errors.As failed to extract ValidationError")
	}
	if ve.Field != "Escalation.Budget" {
		t.Errorf("Field = %q, want %q", ve.Field, "Escalation.Budget")
	}
}

func TestValidationError_ErrorFormat(t *testing.T) {
	err := &verdict.ValidationError{Field: "Escalation.Budget", Message: "must be positive"}
	want := "config: Escalation.Budget: must be positive"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCapabilityError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &verdict.CapabilityError{Capability: "search", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}

	var ce *verdict.CapabilityError
	if !errors.As(fmt.Errorf("attempt 1: %w", err), &ce) {
		t.Fatal("errors.As failed to extract CapabilityError")
	}
	if ce.Capability != "search" {
		t.Errorf("Capability = %q, want %q", ce.Capability, "search")
	}
	if got, want := err.Error(), "capability search: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
