package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultKeyName is the key file created by CreateKey.
const DefaultKeyName = "parley_ed25519"

// LoadSSHPrivateKey loads a private key, using passphrase when it is not
// empty.
func LoadSSHPrivateKey(keyPath, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	if passphrase == "" {
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}

// IsSSHKeyEncrypted checks if an SSH private key is encrypted without attempting to decrypt it
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to read SSH key: %w", err)
	}

	_, err = ssh.ParsePrivateKey(keyData)
	if err == nil {
		return false, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true, nil
	}
	return false, fmt.Errorf("invalid SSH key: %w", err)
}

// FindSSHKeys scans ~/.ssh for SSH private keys usable for credential
// encryption, the parley key first.
func FindSSHKeys() ([]string, error) {
	sshDir := filepath.Join(homeDir(), ".ssh")
	if _, err := os.Stat(sshDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	var found []string
	for _, name := range []string{DefaultKeyName, "id_ed25519", "id_rsa"} {
		keyPath := filepath.Join(sshDir, name)
		if _, err := LoadSSHPrivateKey(keyPath, ""); err == nil {
			found = append(found, keyPath)
			continue
		}
		if encrypted, err := IsSSHKeyEncrypted(keyPath); err == nil && encrypted {
			found = append(found, keyPath)
		}
	}
	return found, nil
}

// CreateKey generates an ed25519 key pair in dir and returns the private
// key path. An existing key is never overwritten: a dated suffix is added
// instead. An empty passphrase writes an unencrypted key.
func CreateKey(dir, passphrase string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	keyPath := filepath.Join(dir, DefaultKeyName)
	if fileExists(keyPath) {
		dateStr := time.Now().Format("20060102")
		for counter := 1; ; counter++ {
			if counter > 99 {
				return "", fmt.Errorf("exceeded maximum key creation limit for today (99)")
			}
			keyPath = filepath.Join(dir, fmt.Sprintf("%s_%s%02d", DefaultKeyName, dateStr, counter))
			if !fileExists(keyPath) {
				break
			}
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	const comment = "parley-encryption-key"
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, comment)
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, comment, []byte(passphrase))
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		return "", fmt.Errorf("failed to write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	if err := os.WriteFile(keyPath+".pub", ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
		return "", fmt.Errorf("failed to write public key: %w", err)
	}

	return keyPath, nil
}
