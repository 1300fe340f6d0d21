package store_test

import (
	"errors"
	"testing"

	"github.com/hyperengineering/verdict/internal/store"
)

func TestResolveProfile_ExplicitParam(t *testing.T) {
	t.Setenv(store.ProfileEnv, "")

	got, err := store.ResolveProfile("support-bot")
	if err != nil {
		t.Fatalf("ResolveProfile(explicit) unexpected error: %v", err)
	}
	if got != "support-bot" {
		t.Errorf("ResolveProfile(explicit) = %q, want %q", got, "support-bot")
	}
}

func TestResolveProfile_EnvVar(t *testing.T) {
	t.Setenv(store.ProfileEnv, "env-bot")

	got, err := store.ResolveProfile("")
	if err != nil {
		t.Fatalf("ResolveProfile(env) unexpected error: %v", err)
	}
	if got != "env-bot" {
		t.Errorf("ResolveProfile(env) = %q, want %q", got, "env-bot")
	}
}

func TestResolveProfile_DefaultFallback(t *testing.T) {
	t.Setenv(store.ProfileEnv, "")

	got, err := store.ResolveProfile("")
	if err != nil {
		t.Fatalf("ResolveProfile(default) unexpected error: %v", err)
	}
	if got != "default" {
		t.Errorf("ResolveProfile(default) = %q, want %q", got, "default")
	}
}

func TestResolveProfile_ExplicitOverEnv(t *testing.T) {
	t.Setenv(store.ProfileEnv, "env-bot")

	got, err := store.ResolveProfile("explicit-bot")
	if err != nil {
		t.Fatalf("ResolveProfile(explicit over env) unexpected error: %v", err)
	}
	if got != "explicit-bot" {
		t.Errorf("ResolveProfile(explicit over env) = %q, want %q", got, "explicit-bot")
	}
}

func TestResolveProfile_InvalidExplicit(t *testing.T) {
	_, err := store.ResolveProfile("INVALID-Bot")
	if !errors.Is(err, store.ErrInvalidProfileID) {
		t.Errorf("ResolveProfile(invalid explicit) error = %v, want ErrInvalidProfileID", err)
	}
}

func TestResolveProfile_InvalidEnv(t *testing.T) {
	t.Setenv(store.ProfileEnv, "org/team")

	_, err := store.ResolveProfile("")
	if !errors.Is(err, store.ErrInvalidProfileID) {
		t.Errorf("ResolveProfile(invalid env) error = %v, want ErrInvalidProfileID", err)
	}
}
