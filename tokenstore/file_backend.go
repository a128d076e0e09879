package tokenstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ Backend = (*FileBackend)(nil)

// FileBackend persists the session snapshot as a JSON file. Writes go to a
// temporary file in the same directory followed by a rename, so readers never
// observe a partially written snapshot. Snapshots can optionally be encrypted
// at rest with XChaCha20-Poly1305.
type FileBackend struct {
	path string
	aead cipher.AEAD
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend) error

// WithEncryptionKey enables at-rest encryption of the snapshot file. The key
// must be chacha20poly1305.KeySize (32) bytes.
func WithEncryptionKey(key []byte) FileOption {
	return func(fb *FileBackend) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return errors.Wrap(err, "[WithEncryptionKey] chacha20poly1305.NewX")
		}
		fb.aead = aead
		return nil
	}
}

// NewFileBackend creates a file backend at path, creating parent directories
// as needed.
func NewFileBackend(path string, options ...FileOption) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("[NewFileBackend] path is required")
	}
	fb := &FileBackend{path: path}
	for _, opt := range options {
		if err := opt(fb); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileBackend] MkdirAll")
	}
	return fb, nil
}

// Load reads the snapshot from disk. A missing file is an empty snapshot,
// not an error.
func (fb *FileBackend) Load() (*Snapshot, error) {
	data, err := os.ReadFile(fb.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileBackend.Load] ReadFile")
	}

	if fb.aead != nil {
		data, err = fb.decrypt(data)
		if err != nil {
			return nil, errors.Wrap(err, "[FileBackend.Load] decrypt")
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "[FileBackend.Load] Unmarshal")
	}
	return &snap, nil
}

// Save writes the snapshot atomically.
func (fb *FileBackend) Save(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "[FileBackend.Save] Marshal")
	}

	if fb.aead != nil {
		data, err = fb.encrypt(data)
		if err != nil {
			return errors.Wrap(err, "[FileBackend.Save] encrypt")
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(fb.path), ".tokens-*")
	if err != nil {
		return errors.Wrap(err, "[FileBackend.Save] CreateTemp")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FileBackend.Save] Write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FileBackend.Save] Chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[FileBackend.Save] Close")
	}
	if err := os.Rename(tmpName, fb.path); err != nil {
		return errors.Wrap(err, "[FileBackend.Save] Rename")
	}
	return nil
}

// Clear removes the snapshot file. Clearing a missing file is a no-op.
func (fb *FileBackend) Clear() error {
	if err := os.Remove(fb.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "[FileBackend.Clear] Remove")
	}
	return nil
}

func (fb *FileBackend) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "rand.Read")
	}
	return fb.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (fb *FileBackend) decrypt(data []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	return fb.aead.Open(nil, nonce, ciphertext, nil)
}
