// Package storage persists evaluation summaries between runs.
// Summaries are JSON files, optionally encrypted at rest using NaCl secretbox.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/MrCodeEU/facepca/pkg/evaluation"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// ErrRecordNotFound is returned when no summary is stored for a key.
// It is evaluation.ErrSummaryNotFound, so a FileStore can back an
// evaluation.Cache directly.
var ErrRecordNotFound = evaluation.ErrSummaryNotFound

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStore stores one file per evaluation summary under dataDir/evaluations.
type FileStore struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

var _ evaluation.Store = (*FileStore)(nil)

// NewFileStore creates the evaluations directory and, if encryption is
// enabled, derives the machine-bound key.
func NewFileStore(dataDir string, encryptionEnabled bool) (*FileStore, error) {
	fs := &FileStore{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		fs.encryptionKey = deriveKey()
	}

	if err := os.MkdirAll(fs.dir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create evaluations directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information,
// tying the encrypted files to this machine and user.
func deriveKey() [KeySize]byte {
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facepca-v1-salt")

	return blake2b.Sum256([]byte(identity.String()))
}

func (fs *FileStore) dir() string {
	return filepath.Join(fs.dataDir, "evaluations")
}

// path maps a cache key to a fixed-length file name.
func (fs *FileStore) path(key string) string {
	sum := blake2b.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:16])
	if fs.encryptionEnabled {
		return filepath.Join(fs.dir(), name+".enc")
	}
	return filepath.Join(fs.dir(), name+".json")
}

// SaveSummary writes s, replacing any summary stored under the same key.
func (fs *FileStore) SaveSummary(s *evaluation.Summary) error {
	if s.Key == "" {
		return errors.New("summary has no key")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt summary: %w", err)
		}
	}

	path := fs.path(s.Key)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}

	logging.Component("storage").Debugf("Saved evaluation summary %s", s.Key)
	return nil
}

// LoadSummary reads the summary stored under key.
func (fs *FileStore) LoadSummary(key string) (*evaluation.Summary, error) {
	s, err := fs.readFile(fs.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		return nil, err
	}
	if s.Key != key {
		// Hash collision or a hand-edited file.
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return s, nil
}

func (fs *FileStore) readFile(path string) (*evaluation.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt summary %s: %w", path, err)
		}
	}

	var s evaluation.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary %s: %w", path, err)
	}
	return &s, nil
}

// DeleteSummary removes the summary stored under key.
func (fs *FileStore) DeleteSummary(key string) error {
	if err := os.Remove(fs.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		return fmt.Errorf("failed to delete summary: %w", err)
	}

	logging.Component("storage").Infof("Deleted evaluation summary %s", key)
	return nil
}

// ListSummaries returns every readable summary, ordered by creation time.
// Files written with a different encryption setting are skipped.
func (fs *FileStore) ListSummaries() ([]*evaluation.Summary, error) {
	entries, err := os.ReadDir(fs.dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*evaluation.Summary{}, nil
		}
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	ext := ".json"
	if fs.encryptionEnabled {
		ext = ".enc"
	}

	summaries := []*evaluation.Summary{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		s, err := fs.readFile(filepath.Join(fs.dir(), entry.Name()))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}
