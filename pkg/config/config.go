// Package config provides configuration management for facepca.
// It loads configuration from YAML files with sensible defaults and
// lets FACEPCA_* environment variables override selected keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all facepca configuration.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	PCA        PCAConfig        `yaml:"pca"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Detector   DetectorConfig   `yaml:"detector"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CorpusConfig describes the reference face directory.
// Width and Height are optional; zero means "take them from the first image".
type CorpusConfig struct {
	Dir    string `yaml:"dir"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// PCAConfig holds eigenface settings.
type PCAConfig struct {
	Rank int `yaml:"rank"`
}

// EvaluationConfig holds the held-out accuracy settings.
type EvaluationConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
	Stratify     bool    `yaml:"stratify"`
	Cache        bool    `yaml:"cache"`
	Persist      bool    `yaml:"persist"`
}

// DetectorConfig holds face detector settings.
type DetectorConfig struct {
	Backend      string  `yaml:"backend"`
	CascadeFile  string  `yaml:"cascade_file"`
	ModelPath    string  `yaml:"model_path"`
	MinSize      int     `yaml:"min_size"`
	MaxSize      int     `yaml:"max_size"`
	ShiftFactor  float64 `yaml:"shift_factor"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	IoUThreshold float64 `yaml:"iou_threshold"`
	MinQuality   float64 `yaml:"min_quality"`
}

// AnnotationConfig holds drawing settings.
type AnnotationConfig struct {
	MinThickness int `yaml:"min_thickness"`
	LabelOffset  int `yaml:"label_offset"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/facepca")
	return &Config{
		Corpus: CorpusConfig{
			Dir: "images",
		},
		PCA: PCAConfig{
			Rank: 30,
		},
		Evaluation: EvaluationConfig{
			TestFraction: 0.4,
			Seed:         42,
			Stratify:     true,
			Cache:        true,
			Persist:      false,
		},
		Detector: DetectorConfig{
			Backend:      "pigo",
			CascadeFile:  filepath.Join(dataDir, "cascade/facefinder"),
			ModelPath:    filepath.Join(dataDir, "models"),
			MinSize:      20,
			MaxSize:      1000,
			ShiftFactor:  0.1,
			ScaleFactor:  1.1,
			IoUThreshold: 0.2,
			MinQuality:   5.0,
		},
		Annotation: AnnotationConfig{
			MinThickness: 3,
			LabelOffset:  10,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir:           dataDir,
			EncryptionEnabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file on top of the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/facepca/facepca.yaml"); err == nil {
		return Load("/etc/facepca/facepca.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/facepca/facepca.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// ApplyEnv overrides configuration values from FACEPCA_* environment variables.
// Unset or unparsable numeric values leave the current value untouched.
func (c *Config) ApplyEnv() {
	envString("FACEPCA_CORPUS_DIR", &c.Corpus.Dir)
	envInt("FACEPCA_PCA_RANK", &c.PCA.Rank)
	envFloat("FACEPCA_TEST_FRACTION", &c.Evaluation.TestFraction)
	envString("FACEPCA_DETECTOR_BACKEND", &c.Detector.Backend)
	envString("FACEPCA_CASCADE_FILE", &c.Detector.CascadeFile)
	envString("FACEPCA_MODEL_PATH", &c.Detector.ModelPath)
	envString("FACEPCA_SERVER_HOST", &c.Server.Host)
	envInt("FACEPCA_SERVER_PORT", &c.Server.Port)
	envString("FACEPCA_DATA_DIR", &c.Storage.DataDir)
	envString("FACEPCA_LOG_LEVEL", &c.Logging.Level)
	envString("FACEPCA_LOG_FILE", &c.Logging.File)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Corpus.Dir == "" {
		return fmt.Errorf("corpus dir must be set")
	}
	if c.Corpus.Width < 0 || c.Corpus.Height < 0 {
		return fmt.Errorf("invalid corpus dimensions: %dx%d", c.Corpus.Width, c.Corpus.Height)
	}
	if (c.Corpus.Width == 0) != (c.Corpus.Height == 0) {
		return fmt.Errorf("corpus width and height must both be set or both be zero, got %dx%d", c.Corpus.Width, c.Corpus.Height)
	}

	if c.PCA.Rank < 1 {
		return fmt.Errorf("pca rank must be at least 1, got %d", c.PCA.Rank)
	}

	if c.Evaluation.TestFraction <= 0 || c.Evaluation.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be between 0 and 1 (exclusive), got %f", c.Evaluation.TestFraction)
	}

	validBackends := map[string]bool{"pigo": true, "dlib": true}
	if !validBackends[c.Detector.Backend] {
		return fmt.Errorf("invalid detector backend: %s (must be pigo or dlib)", c.Detector.Backend)
	}
	if c.Detector.MinSize <= 0 || c.Detector.MaxSize < c.Detector.MinSize {
		return fmt.Errorf("invalid detector size range: %d..%d", c.Detector.MinSize, c.Detector.MaxSize)
	}
	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("scale_factor must be greater than 1, got %f", c.Detector.ScaleFactor)
	}
	if c.Detector.ShiftFactor <= 0 || c.Detector.ShiftFactor >= 1 {
		return fmt.Errorf("shift_factor must be between 0 and 1, got %f", c.Detector.ShiftFactor)
	}
	if c.Detector.IoUThreshold < 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", c.Detector.IoUThreshold)
	}

	if c.Annotation.MinThickness < 1 {
		return fmt.Errorf("min_thickness must be positive, got %d", c.Annotation.MinThickness)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Corpus.Dir = ExpandPath(c.Corpus.Dir)
	c.Detector.CascadeFile = ExpandPath(c.Detector.CascadeFile)
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the storage and log directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
