package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/client/transport"
)

// FileTokenStore keeps the OAuth token of one MCP server under
// <data_dir>/oauth, sealed the same way as the credential store.
type FileTokenStore struct {
	mu     sync.RWMutex
	path   string
	method SecurityMethod
	enc    *EncryptionManager
}

var _ transport.TokenStore = (*FileTokenStore)(nil)

func NewFileTokenStore(server, dataDir string, security SecurityMethod, encMgr *EncryptionManager) *FileTokenStore {
	ext := ".json"
	if security == SecuritySSHKey {
		ext = ".enc"
	}
	return &FileTokenStore{
		path:   filepath.Join(dataDir, "oauth", server+ext),
		method: security,
		enc:    encMgr,
	}
}

// GetToken returns transport.ErrNoToken until a token has been saved.
func (s *FileTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, transport.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	plain, err := unseal(s.method, s.enc, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	token := new(transport.Token)
	if err := json.Unmarshal(plain, token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func (s *FileTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	sealed, err := seal(s.method, s.enc, data)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writePrivateFile(s.path, sealed); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// Delete forgets the stored token. A missing token is not an error.
func (s *FileTokenStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
