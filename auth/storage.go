package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-json-experiment/json"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/oauth2"
)

// Storage is a secure means to store OAuth2 credentials.
type Storage interface {
	// Load returns the current token. If the result is nil, the caller
	// should acquire a new token.
	Load(ctx context.Context) (*oauth2.Token, error)
	// Store sets a new token. If tok is nil, the storage should be cleared.
	Store(ctx context.Context, tok *oauth2.Token) error
}

// FileStorage keeps the bot's user token in a file sealed with
// XChaCha20-Poly1305. Each save writes a fresh random nonce followed by the
// sealed token and replaces the file atomically.
type FileStorage struct {
	mu   sync.Mutex
	path string
	aead cipher.AEAD
}

// KeySize is the size of the key used to encrypt the token file.
const KeySize = chacha20poly1305.KeySize

// maxTokenFile bounds the token file so a wrong path can't exhaust memory.
const maxTokenFile = 1 << 16

// NewFileAt creates a FileStorage at path p. The file need not exist yet,
// but its directory must.
func NewFileAt(p string, key [KeySize]byte) (*FileStorage, error) {
	dir := filepath.Dir(p)
	if fi, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("couldn't use token directory: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("token directory %s is not a directory", dir)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	return &FileStorage{path: p, aead: aead}, nil
}

// Load decrypts the stored token. If there is no token, the result is nil
// with a nil error.
func (f *FileStorage) Load(ctx context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("couldn't read token file: %w", err)
	case len(b) == 0:
		return nil, nil
	case len(b) > maxTokenFile:
		return nil, fmt.Errorf("token file is too large (%d bytes)", len(b))
	}
	p, err := f.open(b)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(p, &tok); err != nil {
		return nil, fmt.Errorf("couldn't decode stored token: %w", err)
	}
	return &tok, nil
}

// Store seals and saves tok, replacing any previous token.
// A nil tok removes the file.
func (f *FileStorage) Store(ctx context.Context, tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok == nil {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("couldn't clear token: %w", err)
		}
		return nil
	}
	p, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("couldn't encode token: %w", err)
	}
	b, err := f.seal(p)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("couldn't save token: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("couldn't save token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("couldn't save token: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("couldn't replace token file: %w", err)
	}
	return nil
}

// seal encrypts p under a random nonce and returns nonce||ciphertext.
func (f *FileStorage) seal(p []byte) ([]byte, error) {
	ns := f.aead.NonceSize()
	b := make([]byte, ns, ns+len(p)+f.aead.Overhead())
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("couldn't generate nonce: %w", err)
	}
	return f.aead.Seal(b, b, p, nil), nil
}

// open reverses seal.
func (f *FileStorage) open(b []byte) ([]byte, error) {
	ns := f.aead.NonceSize()
	if len(b) < ns+f.aead.Overhead() {
		return nil, errors.New("stored token is too short")
	}
	p, err := f.aead.Open(nil, b[:ns], b[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't decrypt stored token: %w", err)
	}
	return p, nil
}
