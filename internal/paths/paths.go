package paths

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultRoot returns ~/.wpphub.
func DefaultRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpphub")
}

// Expand resolves a leading ~ against the user home directory.
func Expand(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// ConnectionsDir returns the directory that holds one credential dir per connection.
func ConnectionsDir(root string) string {
	return filepath.Join(root, "connections")
}

// AuthDir returns the credential directory of a connection.
func AuthDir(root, id string) string {
	return filepath.Join(ConnectionsDir(root), id)
}

// AuthDBPath returns the whatsmeow session.db path of a connection.
func AuthDBPath(root, id string) string {
	return filepath.Join(AuthDir(root, id), "session.db")
}

// AppDBPath returns the app-owned wpphub.db path.
func AppDBPath(root string) string {
	return filepath.Join(root, "wpphub.db")
}

// SocketPath returns the control socket path.
func SocketPath(root string) string {
	return filepath.Join(root, "control.sock")
}

// LogDir returns the log directory.
func LogDir(root string) string {
	return filepath.Join(root, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(root string) string {
	return filepath.Join(LogDir(root), "wpphubd.log")
}

// ConfigPath returns the config file path.
func ConfigPath(root string) string {
	return filepath.Join(root, "config.toml")
}

// EnsureDir creates the data directory tree with proper permissions.
func EnsureDir(root string) error {
	dirs := []string{
		root,
		ConnectionsDir(root),
		LogDir(root),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// ListPersisted returns the ids of connections that have persisted credentials,
// sorted. A missing connections directory yields an empty list.
func ListPersisted(root string) ([]string, error) {
	entries, err := os.ReadDir(ConnectionsDir(root))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || ValidateID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(AuthDBPath(root, e.Name())); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
