package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuthDBPath(t *testing.T) {
	got := AuthDBPath("/data", "acme")
	want := filepath.Join("/data", "connections", "acme", "session.db")
	if got != want {
		t.Errorf("AuthDBPath = %q, want %q", got, want)
	}
}

func TestExpand(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := Expand("~/.wpphub"); got != filepath.Join(home, ".wpphub") {
		t.Errorf("Expand(~/.wpphub) = %q", got)
	}
	if got := Expand("/var/lib/wpphub"); got != "/var/lib/wpphub" {
		t.Errorf("Expand(/var/lib/wpphub) = %q", got)
	}
}

func TestSocketPath(t *testing.T) {
	if got := SocketPath("/data"); !strings.HasSuffix(got, "control.sock") {
		t.Errorf("SocketPath = %q, want suffix control.sock", got)
	}
}

func TestListPersistedMissingDir(t *testing.T) {
	ids, err := ListPersisted(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListPersisted() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestListPersisted(t *testing.T) {
	root := t.TempDir()
	if err := EnsureDir(root); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"zeta", "alpha"} {
		if err := os.MkdirAll(AuthDir(root, id), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(AuthDBPath(root, id), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	// Directory without credentials is ignored.
	if err := os.MkdirAll(AuthDir(root, "empty"), 0700); err != nil {
		t.Fatal(err)
	}

	ids, err := ListPersisted(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Errorf("ids = %v, want [alpha zeta]", ids)
	}
}
