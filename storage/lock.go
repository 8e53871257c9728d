package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const lockExt = ".lock"

// LockSession records this process as the session's writer.
func (s *SessionStorage) LockSession(id string) error {
	path, err := s.file(id, lockExt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// UnlockSession is a no-op when the session is not locked.
func (s *SessionStorage) UnlockSession(id string) error {
	path, err := s.file(id, lockExt)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// CheckSessionLock reports whether another live process holds the session.
// Locks that are unreadable or left by a dead process are removed.
func (s *SessionStorage) CheckSessionLock(id string) (bool, error) {
	path, err := s.file(id, lockExt)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	switch {
	case err != nil || pid <= 0 || !processAlive(pid):
		_ = os.Remove(path)
		return false, nil
	case pid == os.Getpid():
		return false, nil
	}
	return true, nil
}

// processAlive probes pid with signal 0. Platforms without signals report
// every process as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		return true
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false
	}
	return true
}
