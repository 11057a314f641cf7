package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Corpus.Dir != "images" {
		t.Errorf("expected corpus dir images, got %s", cfg.Corpus.Dir)
	}
	if cfg.PCA.Rank != 30 {
		t.Errorf("expected pca rank 30, got %d", cfg.PCA.Rank)
	}
	if cfg.Evaluation.TestFraction != 0.4 {
		t.Errorf("expected test fraction 0.4, got %f", cfg.Evaluation.TestFraction)
	}
	if cfg.Evaluation.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.Evaluation.Seed)
	}
	if !cfg.Evaluation.Stratify || !cfg.Evaluation.Cache {
		t.Error("expected stratified, cached evaluation by default")
	}
	if cfg.Evaluation.Persist {
		t.Error("expected persistence to be disabled by default")
	}
	if cfg.Detector.Backend != "pigo" {
		t.Errorf("expected pigo backend, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.ScaleFactor != 1.1 {
		t.Errorf("expected scale factor 1.1, got %f", cfg.Detector.ScaleFactor)
	}
	if cfg.Annotation.MinThickness != 3 || cfg.Annotation.LabelOffset != 10 {
		t.Errorf("unexpected annotation defaults: %+v", cfg.Annotation)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "facepca.yaml")

	configContent := `
corpus:
  dir: /srv/faces
  width: 92
  height: 112

pca:
  rank: 12

evaluation:
  test_fraction: 0.25
  seed: 7
  stratify: false

detector:
  backend: dlib
  model_path: /custom/models

server:
  port: 9090

logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Corpus.Dir != "/srv/faces" {
		t.Errorf("expected corpus dir /srv/faces, got %s", cfg.Corpus.Dir)
	}
	if cfg.Corpus.Width != 92 || cfg.Corpus.Height != 112 {
		t.Errorf("expected 92x112, got %dx%d", cfg.Corpus.Width, cfg.Corpus.Height)
	}
	if cfg.PCA.Rank != 12 {
		t.Errorf("expected rank 12, got %d", cfg.PCA.Rank)
	}
	if cfg.Evaluation.TestFraction != 0.25 || cfg.Evaluation.Seed != 7 {
		t.Errorf("unexpected evaluation config: %+v", cfg.Evaluation)
	}
	if cfg.Evaluation.Stratify {
		t.Error("expected stratify to be disabled")
	}
	if !cfg.Evaluation.Cache {
		t.Error("unset keys should keep their defaults")
	}
	if cfg.Detector.Backend != "dlib" {
		t.Errorf("expected dlib backend, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.ScaleFactor != 1.1 {
		t.Errorf("expected default scale factor to survive, got %f", cfg.Detector.ScaleFactor)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")

	if cfg == nil {
		t.Error("expected default config on error")
	}
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("pca: [rank: 3"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(configPath)
	if cfg == nil {
		t.Error("expected default config on error")
	}
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FACEPCA_CORPUS_DIR", "/env/faces")
	t.Setenv("FACEPCA_PCA_RANK", "8")
	t.Setenv("FACEPCA_TEST_FRACTION", "0.3")
	t.Setenv("FACEPCA_SERVER_PORT", "not-a-number")
	t.Setenv("FACEPCA_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Corpus.Dir != "/env/faces" {
		t.Errorf("expected /env/faces, got %s", cfg.Corpus.Dir)
	}
	if cfg.PCA.Rank != 8 {
		t.Errorf("expected rank 8, got %d", cfg.PCA.Rank)
	}
	if cfg.Evaluation.TestFraction != 0.3 {
		t.Errorf("expected fraction 0.3, got %f", cfg.Evaluation.TestFraction)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unparsable port should keep default, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("FACEPCA_TEST_ROOT", "/opt/facepca")

	if got := ExpandPath("~/faces"); strings.HasPrefix(got, "~") {
		t.Errorf("tilde was not expanded: %s", got)
	}
	if got := ExpandPath("$FACEPCA_TEST_ROOT/faces"); got != "/opt/facepca/faces" {
		t.Errorf("env var was not expanded: %s", got)
	}
	if got := ExpandPath("relative/path"); got != "relative/path" {
		t.Errorf("unexpected expansion: %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:      "empty corpus dir",
			modify:    func(c *Config) { c.Corpus.Dir = "" },
			wantError: true,
			errorMsg:  "corpus dir must be set",
		},
		{
			name:      "only width set",
			modify:    func(c *Config) { c.Corpus.Width = 64 },
			wantError: true,
			errorMsg:  "both be set",
		},
		{
			name:   "explicit dimensions",
			modify: func(c *Config) { c.Corpus.Width, c.Corpus.Height = 64, 64 },
		},
		{
			name:      "zero rank",
			modify:    func(c *Config) { c.PCA.Rank = 0 },
			wantError: true,
			errorMsg:  "pca rank must be at least 1",
		},
		{
			name:      "test fraction of one",
			modify:    func(c *Config) { c.Evaluation.TestFraction = 1 },
			wantError: true,
			errorMsg:  "test_fraction",
		},
		{
			name:      "unknown backend",
			modify:    func(c *Config) { c.Detector.Backend = "haar" },
			wantError: true,
			errorMsg:  "invalid detector backend",
		},
		{
			name:      "inverted size range",
			modify:    func(c *Config) { c.Detector.MaxSize = 10 },
			wantError: true,
			errorMsg:  "invalid detector size range",
		},
		{
			name:      "scale factor not above one",
			modify:    func(c *Config) { c.Detector.ScaleFactor = 1 },
			wantError: true,
			errorMsg:  "scale_factor",
		},
		{
			name:      "zero thickness",
			modify:    func(c *Config) { c.Annotation.MinThickness = 0 },
			wantError: true,
			errorMsg:  "min_thickness",
		},
		{
			name:      "bad port",
			modify:    func(c *Config) { c.Server.Port = 70000 },
			wantError: true,
			errorMsg:  "invalid server port",
		},
		{
			name:      "invalid log level",
			modify:    func(c *Config) { c.Logging.Level = "invalid" },
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name:      "invalid log format",
			modify:    func(c *Config) { c.Logging.Format = "xml" },
			wantError: true,
			errorMsg:  "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantError {
				if err == nil {
					t.Error("expected error but got nil")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error message doesn't contain '%s': %v", tt.errorMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ExpandPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Corpus.Dir = "~/faces"
	cfg.Storage.DataDir = "~/facepca/data"
	cfg.Logging.File = "~/facepca/log.txt"

	cfg.ExpandPaths()

	for name, p := range map[string]string{
		"Corpus.Dir":      cfg.Corpus.Dir,
		"Storage.DataDir": cfg.Storage.DataDir,
		"Logging.File":    cfg.Logging.File,
	} {
		if strings.HasPrefix(p, "~") {
			t.Errorf("%s tilde was not expanded: %s", name, p)
		}
	}
}

func TestConfig_EnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(tmpDir, "data")
	cfg.Logging.File = filepath.Join(tmpDir, "logs", "facepca.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		t.Error("storage data dir was not created")
	}
	if _, err := os.Stat(filepath.Dir(cfg.Logging.File)); os.IsNotExist(err) {
		t.Error("log dir was not created")
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8181

	if got := cfg.Addr(); got != "0.0.0.0:8181" {
		t.Errorf("expected 0.0.0.0:8181, got %s", got)
	}
}

func BenchmarkConfig_Validate(b *testing.B) {
	cfg := DefaultConfig()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}
