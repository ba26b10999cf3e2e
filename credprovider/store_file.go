package credprovider

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// fileRecord is the on-disk JSON shape, with RefreshableCredentials field
// names verbatim, per the collaborator contract for file-backed stores.
type fileRecord struct {
	ClientID     string     `json:"clientId"`
	AccessToken  string     `json:"accessToken"`
	ClientSecret string     `json:"clientSecret"`
	RefreshToken string     `json:"refreshToken"`
	Scopes       []string   `json:"scopes"`
	ExpiryDate   *time.Time `json:"expiryDate"`
	ExpiresIn    int64      `json:"expiresIn"` // seconds
	Timestamp    time.Time  `json:"timestamp"`
}

func toFileRecord(c Credentials) fileRecord {
	return fileRecord{
		ClientID:     c.ClientID,
		AccessToken:  c.AccessToken,
		ClientSecret: c.ClientSecret,
		RefreshToken: c.RefreshToken,
		Scopes:       c.Scopes,
		ExpiryDate:   c.ExpiryDate,
		ExpiresIn:    int64(c.ExpiresIn / time.Second),
		Timestamp:    c.Timestamp,
	}
}

func (r fileRecord) toCredentials() Credentials {
	return Credentials{
		ClientID:     r.ClientID,
		AccessToken:  r.AccessToken,
		ClientSecret: r.ClientSecret,
		RefreshToken: r.RefreshToken,
		Scopes:       r.Scopes,
		ExpiryDate:   r.ExpiryDate,
		ExpiresIn:    time.Duration(r.ExpiresIn) * time.Second,
		Timestamp:    r.Timestamp,
	}
}

// FileStore reads and writes credentials verbatim as JSON at a single
// path. There is no locking: concurrent Providers pointed at the same file
// are explicitly undefined behavior, matching a single-writer assumption.
type FileStore struct {
	path string
	perm os.FileMode
}

// NewFileStore builds a Store backed by a plain JSON file. perm defaults
// to 0600 when zero.
func NewFileStore(path string, perm os.FileMode) *FileStore {
	if perm == 0 {
		perm = 0o600
	}
	return &FileStore{path: path, perm: perm}
}

func (s *FileStore) Load(_ context.Context) (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Credentials{}, newLoadError("load", "reading credential file", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Credentials{}, newLoadError("load", "decoding credential file", err)
	}
	return rec.toCredentials(), nil
}

func (s *FileStore) Save(_ context.Context, creds Credentials) error {
	data, err := json.MarshalIndent(toFileRecord(creds), "", "  ")
	if err != nil {
		return newPersistenceError("save", "encoding credential file", err)
	}
	if err := os.WriteFile(s.path, data, s.perm); err != nil {
		return newPersistenceError("save", "writing credential file", err)
	}
	return nil
}

// EncryptedFileStore is the same JSON-verbatim contract as FileStore, with
// the payload encrypted at rest using AES-GCM. Not required by the
// load/save contract but a natural variant for deployments that cannot
// otherwise protect the refresh token on disk.
type EncryptedFileStore struct {
	path string
	perm os.FileMode
	gcm  cipher.AEAD
}

// NewEncryptedFileStore derives an AES-256 key from passphrase via SHA-256
// and builds a Store that encrypts the JSON payload with AES-GCM.
func NewEncryptedFileStore(path string, perm os.FileMode, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("credprovider: encryption passphrase must not be empty")
	}
	if perm == 0 {
		perm = 0o600
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("credprovider: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credprovider: creating GCM: %w", err)
	}
	return &EncryptedFileStore{path: path, perm: perm, gcm: gcm}, nil
}

func (s *EncryptedFileStore) Load(_ context.Context) (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Credentials{}, newLoadError("load", "reading encrypted credential file", err)
	}
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return Credentials{}, newLoadError("load", "encrypted credential file is truncated", nil)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, newLoadError("load", "decrypting credential file", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Credentials{}, newLoadError("load", "decoding credential file", err)
	}
	return rec.toCredentials(), nil
}

func (s *EncryptedFileStore) Save(_ context.Context, creds Credentials) error {
	data, err := json.MarshalIndent(toFileRecord(creds), "", "  ")
	if err != nil {
		return newPersistenceError("save", "encoding credential file", err)
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return newPersistenceError("save", "generating nonce", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, data, nil)
	if err := os.WriteFile(s.path, ciphertext, s.perm); err != nil {
		return newPersistenceError("save", "writing credential file", err)
	}
	return nil
}
