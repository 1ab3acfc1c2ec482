package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDir returns the root directory for Pebble data:
// $ZPOLL_DATA_DIR, then $XDG_DATA_HOME/zpoll, then ~/.local/share/zpoll.
// Without a home directory it falls back to ./zpoll-data.
func DefaultDataDir() string {
	if dir := os.Getenv("ZPOLL_DATA_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "zpoll")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./zpoll-data"
	}
	return filepath.Join(home, ".local", "share", "zpoll")
}

// PebbleDir returns the database directory of queue key under root. Each
// queue has its own database; the key is escaped so it stays one path
// element.
func PebbleDir(root, key string) string {
	name := url.PathEscape(key)
	if name == "." || name == ".." {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	return filepath.Join(root, "pebble", name)
}
