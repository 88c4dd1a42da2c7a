package tokenstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	// defaultPassphrase seals tokens when TOKEN_PASSWORD is unset. The file is
	// still 0600; the passphrase only keeps the token out of plain sight.
	defaultPassphrase = "exstem-proctor"
)

// ErrCorruptTokenFile is returned when the sealed file cannot be opened.
var ErrCorruptTokenFile = errors.New("token file is corrupt or the password is wrong")

// FileStore seals the token with NaCl secretbox under a key derived from a
// passphrase with scrypt. Layout: salt(16) | nonce(24) | box.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path, passphrase string) *FileStore {
	if passphrase == "" {
		passphrase = defaultPassphrase
	}
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", ErrCorruptTokenFile
	}

	var salt [saltSize]byte
	var nonce [nonceSize]byte
	copy(salt[:], raw[:saltSize])
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	key, err := s.deriveKey(salt[:])
	if err != nil {
		return "", err
	}

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return "", ErrCorruptTokenFile
	}

	token := string(plain)
	if err := checkExpiry(token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *FileStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var salt [saltSize]byte
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	key, err := s.deriveKey(salt[:])
	if err != nil {
		return err
	}

	out := make([]byte, 0, saltSize+nonceSize+len(token)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(token), &nonce, key)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (s *FileStore) deriveKey(salt []byte) (*[keySize]byte, error) {
	derived, err := scrypt.Key([]byte(s.passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], derived)
	return &key, nil
}
