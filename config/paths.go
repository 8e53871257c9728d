package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const appName = "parley"

// homeDir falls back to the filesystem root when no home is set, as in
// minimal containers.
func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return string(filepath.Separator)
}

// ConfigDir holds settings.toml: ~/.config/parley.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", appName)
}

// SettingsPath is the system settings file that locates the data directory.
func SettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.toml")
}

// UserConfigPath is the user config inside dataDir.
func UserConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// MemoryDir is where the local memory stores keep their files.
func MemoryDir(dataDir string) string {
	return filepath.Join(dataDir, "memory")
}

// ExpandPath resolves a leading ~ and environment variables.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		return homeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(homeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// ensurePrivateDir creates dir if needed and narrows it to the owner.
func ensurePrivateDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0o700)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "mkdir", Path: dir, Err: fs.ErrExist}
	}
	if info.Mode().Perm() != 0o700 {
		return os.Chmod(dir, 0o700)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writePrivateFile replaces path atomically with owner-only permissions.
func writePrivateFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
