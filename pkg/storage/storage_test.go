package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrCodeEU/facepca/pkg/evaluation"
)

func createTestSummary(key string, accuracy float64) *evaluation.Summary {
	return &evaluation.Summary{
		Key:          key,
		Fingerprint:  strings.SplitN(key, "-", 2)[0],
		Rank:         30,
		TestFraction: 0.4,
		Seed:         42,
		Stratify:     true,
		Accuracy:     accuracy,
		TrainSize:    12,
		TestSize:     8,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		encryption bool
	}{
		{name: "without encryption", dataDir: filepath.Join(tmpDir, "test1")},
		{name: "with encryption", dataDir: filepath.Join(tmpDir, "test2"), encryption: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStore(tt.dataDir, tt.encryption)
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}
			if fs == nil {
				t.Fatal("NewFileStore returned nil")
			}

			if _, err := os.Stat(filepath.Join(tt.dataDir, "evaluations")); os.IsNotExist(err) {
				t.Error("evaluations directory was not created")
			}
		})
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		fs, err := NewFileStore(t.TempDir(), encrypted)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		want := createTestSummary("abc-k30-f0.4-s42-true", 0.875)
		if err := fs.SaveSummary(want); err != nil {
			t.Fatalf("SaveSummary failed (encrypted=%v): %v", encrypted, err)
		}

		got, err := fs.LoadSummary(want.Key)
		if err != nil {
			t.Fatalf("LoadSummary failed (encrypted=%v): %v", encrypted, err)
		}
		if got.Accuracy != want.Accuracy || got.Fingerprint != "abc" || got.TestSize != 8 {
			t.Errorf("loaded summary mismatch (encrypted=%v): %+v", encrypted, got)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
		}
	}
}

func TestFileStore_EncryptedFileIsNotPlaintext(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	s := createTestSummary("secret-fingerprint-k30", 0.5)
	if err := fs.SaveSummary(s); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	data, err := os.ReadFile(fs.path(s.Key))
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	if strings.Contains(string(data), "secret-fingerprint") {
		t.Error("encrypted file contains plaintext key")
	}
	if filepath.Ext(fs.path(s.Key)) != ".enc" {
		t.Errorf("expected .enc extension, got %s", fs.path(s.Key))
	}
}

func TestFileStore_SaveReplaces(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	_ = fs.SaveSummary(createTestSummary("k", 0.1))
	_ = fs.SaveSummary(createTestSummary("k", 0.9))

	got, err := fs.LoadSummary("k")
	if err != nil {
		t.Fatalf("LoadSummary failed: %v", err)
	}
	if got.Accuracy != 0.9 {
		t.Errorf("expected replaced accuracy 0.9, got %v", got.Accuracy)
	}
}

func TestFileStore_SaveWithoutKey(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := fs.SaveSummary(&evaluation.Summary{}); err == nil {
		t.Error("expected error for summary without key")
	}
}

func TestFileStore_LoadSummary_NotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	_, err = fs.LoadSummary("nonexistent")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if !errors.Is(err, evaluation.ErrSummaryNotFound) {
		t.Errorf("expected evaluation.ErrSummaryNotFound, got %v", err)
	}
}

func TestFileStore_DeleteSummary(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	_ = fs.SaveSummary(createTestSummary("todelete", 0.5))

	if err := fs.DeleteSummary("todelete"); err != nil {
		t.Fatalf("DeleteSummary failed: %v", err)
	}
	if _, err := fs.LoadSummary("todelete"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound after delete, got %v", err)
	}
	if err := fs.DeleteSummary("todelete"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}
}

func TestFileStore_ListSummaries(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	list, err := fs.ListSummaries()
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range []string{"c", "a", "b"} {
		s := createTestSummary(key, 0.5)
		s.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := fs.SaveSummary(s); err != nil {
			t.Fatalf("SaveSummary failed: %v", err)
		}
	}
	// Unrelated files are ignored.
	_ = os.WriteFile(filepath.Join(fs.dir(), "README"), []byte("x"), 0600)

	list, err = fs.ListSummaries()
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(list))
	}
	for i, want := range []string{"c", "a", "b"} {
		if list[i].Key != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Key, want)
		}
	}
}

func TestFileStore_BacksEvaluationCache(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var store evaluation.Store = fs
	if err := store.SaveSummary(createTestSummary("x-k1", 1)); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if _, err := store.LoadSummary("x-k2"); !errors.Is(err, evaluation.ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound for a different key, got %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	plaintext := []byte("Hello, World! This is a test message.")

	encrypted, err := fs.encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if string(encrypted) == string(plaintext) {
		t.Error("encrypted data should differ from plaintext")
	}

	decrypted, err := fs.decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestDecrypt_InvalidData(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, err := fs.decrypt([]byte("short")); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for short data, got %v", err)
	}

	invalid := make([]byte, NonceSize+32)
	if _, err := fs.decrypt(invalid); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for invalid data, got %v", err)
	}
}

func BenchmarkFileStore_SaveSummary(b *testing.B) {
	fs, _ := NewFileStore(b.TempDir(), false)
	s := createTestSummary("bench", 0.5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fs.SaveSummary(s)
	}
}

func BenchmarkEncryptDecrypt(b *testing.B) {
	fs, _ := NewFileStore(b.TempDir(), true)
	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		encrypted, _ := fs.encrypt(data)
		_, _ = fs.decrypt(encrypted)
	}
}
