package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// keyDerivationMessage is signed to derive the AES key. Changing it makes
// every existing credentials.enc unreadable.
const keyDerivationMessage = "parley-credential-key-derivation-v1"

// ErrPassphraseRequired is returned when the SSH key is encrypted and no
// passphrase was supplied.
var ErrPassphraseRequired = errors.New("SSH key is encrypted - passphrase required")

// EncryptionManager seals data with AES-256-GCM under a key derived from an
// SSH private key. It is shared by the credential store and the OAuth token
// store.
type EncryptionManager struct {
	sshKeyPath string
	passphrase string
	aesKey     []byte
}

// NewEncryptionManager creates a manager for the key at sshKeyPath. Call
// Initialize before Encrypt or Decrypt.
func NewEncryptionManager(sshKeyPath string) *EncryptionManager {
	return &EncryptionManager{sshKeyPath: sshKeyPath}
}

// NewEncryptionManagerFromSigner derives the key from an already loaded
// signer.
func NewEncryptionManagerFromSigner(signer ssh.Signer) (*EncryptionManager, error) {
	key, err := DeriveAESKeyFromSSH(signer)
	if err != nil {
		return nil, err
	}
	return &EncryptionManager{aesKey: key}, nil
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (e *EncryptionManager) SetPassphrase(passphrase string) {
	e.passphrase = passphrase
}

// Initialize loads the SSH key and derives the AES key.
func (e *EncryptionManager) Initialize() error {
	if e.aesKey != nil {
		return nil
	}

	encrypted, err := IsSSHKeyEncrypted(e.sshKeyPath)
	if err != nil {
		return fmt.Errorf("failed to check SSH key: %w", err)
	}
	if encrypted && e.passphrase == "" {
		return ErrPassphraseRequired
	}

	signer, err := LoadSSHPrivateKey(e.sshKeyPath, e.passphrase)
	if err != nil {
		return fmt.Errorf("failed to load SSH key: %w", err)
	}

	key, err := DeriveAESKeyFromSSH(signer)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	e.aesKey = key
	return nil
}

// Encrypt seals plaintext as [nonce][ciphertext+tag].
func (e *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (e *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (e *EncryptionManager) aead() (cipher.AEAD, error) {
	if e == nil || e.aesKey == nil {
		return nil, fmt.Errorf("encryption manager not initialized")
	}
	block, err := aes.NewCipher(e.aesKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveAESKeyFromSSH hashes the signature of a fixed message. Only key
// types with deterministic signatures produce a stable key, so ECDSA and
// security-key types are refused.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	keyType := signer.PublicKey().Type()
	if strings.HasPrefix(keyType, "ecdsa") || strings.HasPrefix(keyType, "sk-") {
		return nil, fmt.Errorf("SSH key type %s does not sign deterministically; use ed25519 or rsa", keyType)
	}

	signature, err := signer.Sign(rand.Reader, []byte(keyDerivationMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}

// seal applies the storage method to data before it is written.
func seal(method SecurityMethod, enc *EncryptionManager, data []byte) ([]byte, error) {
	switch method {
	case SecurityPlainText:
		return data, nil
	case SecuritySSHKey:
		return enc.Encrypt(data)
	default:
		return nil, fmt.Errorf("unknown security method: %s", method)
	}
}

// unseal reverses seal.
func unseal(method SecurityMethod, enc *EncryptionManager, data []byte) ([]byte, error) {
	switch method {
	case SecurityPlainText:
		return data, nil
	case SecuritySSHKey:
		return enc.Decrypt(data)
	default:
		return nil, fmt.Errorf("unknown security method: %s", method)
	}
}
