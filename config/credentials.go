package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// SecurityMethod selects how the credential store is kept on disk.
type SecurityMethod string

const (
	// SecurityPlainText keeps credentials.toml readable by the owner only.
	SecurityPlainText SecurityMethod = "plaintext"
	// SecuritySSHKey seals credentials.enc with a key derived from an
	// Ed25519 or RSA SSH key.
	SecuritySSHKey SecurityMethod = "ssh_key"
)

// CredentialStore holds provider API keys and MCP server secrets. Values
// are keyed by provider id, or by mcp_<server>_<name> for server secrets.
type CredentialStore struct {
	mu         sync.RWMutex
	method     SecurityMethod
	sshKeyPath string
	passphrase string
	enc        *EncryptionManager
	values     map[string]string
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{method: method, sshKeyPath: sshKeyPath, values: map[string]string{}}
}

// SetPassphrase unlocks a passphrase-protected SSH key on the next Load or
// Save.
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	c.enc = nil
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

func (c *CredentialStore) file(dataDir string) (string, error) {
	switch c.method {
	case SecurityPlainText:
		return credentialsPath(dataDir), nil
	case SecuritySSHKey:
		return encryptedCredentialsPath(dataDir), nil
	}
	return "", fmt.Errorf("unknown security method: %s", c.method)
}

// Load replaces the in-memory values with the file in dataDir. A missing
// file is an empty store.
func (c *CredentialStore) Load(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.file(dataDir)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.values = map[string]string{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	values, err := c.decode(data)
	if err != nil {
		return err
	}
	if values == nil {
		values = map[string]string{}
	}
	c.values = values
	return nil
}

// Save writes every value to dataDir with owner-only permissions.
func (c *CredentialStore) Save(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.file(dataDir)
	if err != nil {
		return err
	}
	data, err := c.encode()
	if err != nil {
		return err
	}
	if err := writePrivateFile(path, data); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

// decode and encode must be called with c.mu held.
func (c *CredentialStore) decode(data []byte) (map[string]string, error) {
	if c.method == SecurityPlainText {
		var cf credentialsFile
		if _, err := toml.Decode(string(data), &cf); err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return cf.Credentials, nil
	}

	if err := c.unlock(); err != nil {
		return nil, err
	}
	plain, err := unseal(c.method, c.enc, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	var values map[string]string
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}
	return values, nil
}

func (c *CredentialStore) encode() ([]byte, error) {
	if c.method == SecurityPlainText {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(credentialsFile{Credentials: c.values}); err != nil {
			return nil, fmt.Errorf("failed to encode credentials: %w", err)
		}
		return buf.Bytes(), nil
	}

	if err := c.unlock(); err != nil {
		return nil, err
	}
	plain, err := json.Marshal(c.values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := seal(c.method, c.enc, plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return sealed, nil
}

// unlock derives the encryption key from the SSH key once.
func (c *CredentialStore) unlock() error {
	if c.enc != nil {
		return nil
	}
	mgr := NewEncryptionManager(c.sshKeyPath)
	mgr.SetPassphrase(c.passphrase)
	if err := mgr.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.enc = mgr
	return nil
}

func (c *CredentialStore) Get(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[id]
}

func (c *CredentialStore) Set(id, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[id] = value
}

func (c *CredentialStore) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, id)
}

// Keys lists stored credential names, sorted.
func (c *CredentialStore) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.values))
}

func serverKey(server, name string) string {
	return "mcp_" + server + "_" + name
}

// GetServer returns a secret of an MCP server, such as a header value.
func (c *CredentialStore) GetServer(server, name string) string {
	return c.Get(serverKey(server, name))
}

func (c *CredentialStore) SetServer(server, name, value string) {
	c.Set(serverKey(server, name), value)
}

// DeleteServer forgets every secret of an MCP server.
func (c *CredentialStore) DeleteServer(server string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := serverKey(server, "")
	maps.DeleteFunc(c.values, func(k, _ string) bool { return strings.HasPrefix(k, prefix) })
}

// EncryptionManager is nil until an ssh_key store has been loaded or saved.
func (c *CredentialStore) EncryptionManager() *EncryptionManager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enc
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}
