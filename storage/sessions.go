package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const sessionExt = ".json"

// SessionStorage reads and writes sessions in one directory. Writes replace
// files atomically so a crash never leaves half a session behind.
type SessionStorage struct {
	dir string
	now func() time.Time
}

func NewSessionStorage(dataDir string) (*SessionStorage, error) {
	dir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &SessionStorage{dir: dir, now: time.Now}, nil
}

// Dir is the sessions directory.
func (s *SessionStorage) Dir() string { return s.dir }

// file maps a session id to a file in the sessions directory, refusing ids
// that would escape it.
func (s *SessionStorage) file(id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.dir, id+ext), nil
}

// Save writes session, naming it after its first user message when it has
// no name yet.
func (s *SessionStorage) Save(session *Session) error {
	path, err := s.file(session.ID, sessionExt)
	if err != nil {
		return err
	}
	session.UpdatedAt = s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}
	if session.Name == "" {
		session.Name = session.defaultName()
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("failed to write session %s: %w", session.ID, err)
	}
	return nil
}

// Load returns nil and no error when the session does not exist.
func (s *SessionStorage) Load(id string) (*Session, error) {
	path, err := s.file(id, sessionExt)
	if err != nil {
		return nil, err
	}
	session, err := readSession(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return session, err
}

func (s *SessionStorage) mustLoad(id string) (*Session, error) {
	session, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return session, nil
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	session := new(Session)
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return session, nil
}

// List returns every session, most recently updated first.
func (s *SessionStorage) List() ([]SessionMetadata, error) {
	sessions, err := s.all()
	if err != nil {
		return nil, err
	}
	metas := make([]SessionMetadata, len(sessions))
	for i, session := range sessions {
		metas[i] = session.Metadata()
	}
	return metas, nil
}

// all loads every readable session, most recently updated first. Files that
// fail to decode are skipped.
func (s *SessionStorage) all() ([]*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}
	var sessions []*Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != sessionExt {
			continue
		}
		if session, err := readSession(filepath.Join(s.dir, e.Name())); err == nil {
			sessions = append(sessions, session)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes the session and any lock on it.
func (s *SessionStorage) Delete(id string) error {
	path, err := s.file(id, sessionExt)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return s.UnlockSession(id)
}

func (s *SessionStorage) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session name is empty")
	}
	session, err := s.mustLoad(id)
	if err != nil {
		return err
	}
	session.Name = name
	return s.Save(session)
}

// Export writes the session as indented JSON.
func (s *SessionStorage) Export(id string, w io.Writer) error {
	session, err := s.mustLoad(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

func (s *SessionStorage) currentIDPath() string {
	return filepath.Join(filepath.Dir(s.dir), "current_session.id")
}

// SaveCurrentSessionID remembers the session chat resumes by default.
func (s *SessionStorage) SaveCurrentSessionID(id string) error {
	return replaceFile(s.currentIDPath(), []byte(id))
}

func (s *SessionStorage) LoadCurrentSessionID() (string, error) {
	data, err := os.ReadFile(s.currentIDPath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// replaceFile writes data next to path and renames it into place.
func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
