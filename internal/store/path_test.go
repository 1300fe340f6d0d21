package store_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperengineering/verdict/internal/store"
)

func TestDefaultRoot_UsesHomeDir(t *testing.T) {
	t.Setenv(store.HomeEnv, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot determine home directory: %v", err)
	}

	root := store.DefaultRoot()
	expected := filepath.Join(home, ".verdict", "profiles")

	if root != expected {
		t.Errorf("DefaultRoot() = %q, want %q", root, expected)
	}
}

func TestDefaultRoot_VERDICT_HOME_Override(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(store.HomeEnv, tmp)

	root := store.DefaultRoot()
	expected := filepath.Join(tmp, "profiles")

	if root != expected {
		t.Errorf("DefaultRoot() = %q, want %q", root, expected)
	}
}

func TestProfileDBPath(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(store.HomeEnv, tmp)

	got := store.ProfileDBPath("support-bot")
	expected := filepath.Join(tmp, "profiles", "support-bot", "outcomes.db")

	if got != expected {
		t.Errorf("ProfileDBPath() = %q, want %q", got, expected)
	}
}

func TestListProfiles(t *testing.T) {
	root := t.TempDir()

	for _, name := range []string{"zeta", "alpha", "empty", "Bad_Name"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"zeta", "alpha", "Bad_Name"} {
		if err := os.WriteFile(filepath.Join(root, name, store.DBFileName), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListProfiles(root)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	want := []string{"alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListProfiles() = %v, want %v", got, want)
	}
}

func TestListProfiles_MissingRoot(t *testing.T) {
	got, err := store.ListProfiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListProfiles() = %v, want empty", got)
	}
}
