// Package config provides configuration management for FaceFolio.
// It loads configuration from YAML files with sensible defaults and lets
// the environment override secrets and deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

const (
	systemConfigPath = "/etc/facefolio/facefolio.yaml"
	userConfigPath   = ".config/facefolio/facefolio.yaml"
)

// Config holds all FaceFolio configuration.
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Detector    DetectorConfig    `yaml:"detector"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Storage     StorageConfig     `yaml:"storage"`
	Collections CollectionsConfig `yaml:"collections"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RecognitionConfig holds matching and deduplication thresholds.
type RecognitionConfig struct {
	MatchThreshold       float64 `yaml:"match_threshold"`
	SameFaceThreshold    float64 `yaml:"same_face_threshold"`
	AmbiguityMaxDistance float64 `yaml:"ambiguity_max_distance"`
	IoUThreshold         float64 `yaml:"iou_threshold"`
	// EmbeddingDimension of zero is inferred from the first learned face.
	EmbeddingDimension int     `yaml:"embedding_dimension"`
	Index              string  `yaml:"index"`
	CropPadding        float64 `yaml:"crop_padding"`
	CropMaxSide        int     `yaml:"crop_max_side"`
	CropWorkers        int     `yaml:"crop_workers"`
}

// DetectorConfig selects and configures the face detector.
type DetectorConfig struct {
	Backend   string `yaml:"backend"`
	URL       string `yaml:"url"`
	ModelPath string `yaml:"model_path"`
	Timeout   int    `yaml:"timeout"`
}

// GalleryConfig holds the known-faces gallery settings.
type GalleryConfig struct {
	Path              string `yaml:"path"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
	Compression       string `yaml:"compression"`
}

// SessionsConfig holds session registry settings.
type SessionsConfig struct {
	Backend string `yaml:"backend"`
	// TTL in seconds; zero keeps sessions until finalized.
	TTL   int         `yaml:"ttl"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// StorageConfig holds scratch storage settings.
type StorageConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
}

// CollectionsConfig selects where filed photos go.
type CollectionsConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Minio   MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	UploadRate     float64  `yaml:"upload_rate"`
	UploadBurst    int      `yaml:"upload_burst"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/facefolio")
	return &Config{
		Recognition: RecognitionConfig{
			MatchThreshold:       0.6,
			SameFaceThreshold:    0.08,
			AmbiguityMaxDistance: 0.7,
			IoUThreshold:         0.6,
			Index:                string(recognition.IndexLinear),
			CropPadding:          0.25,
			CropMaxSide:          512,
			CropWorkers:          4,
		},
		Detector: DetectorConfig{
			Backend:   "http",
			URL:       "http://localhost:8000",
			ModelPath: filepath.Join(dataDir, "models"),
			Timeout:   60,
		},
		Gallery: GalleryConfig{
			Path:        filepath.Join(dataDir, "gallery.ffgl"),
			Compression: string(storage.CompressionZstd),
		},
		Sessions: SessionsConfig{
			Backend: "memory",
			TTL:     3600,
			Redis: RedisConfig{
				Addrs:     []string{"localhost:6379"},
				KeyPrefix: "facefolio:session:",
			},
		},
		Storage: StorageConfig{
			ScratchDir: filepath.Join(dataDir, "scratch"),
		},
		Collections: CollectionsConfig{
			Backend: "local",
			Dir:     filepath.Join(dataDir, "sorted"),
			Minio: MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "facefolio",
			},
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			UploadRate:  2,
			UploadBurst: 4,
			MaxUploadMB: 25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file and applies
// environment overrides.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	// Try system config first
	if _, err := os.Stat(systemConfigPath); err == nil {
		return Load(systemConfigPath)
	}

	// Try user config
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, userConfigPath)
		if _, err := os.Stat(userConfig); err == nil {
			return Load(userConfig)
		}
	}

	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("FACEFOLIO_REDIS_PASSWORD"); v != "" {
		c.Sessions.Redis.Password = v
	}
	if v := os.Getenv("FACEFOLIO_MINIO_ACCESS_KEY"); v != "" {
		c.Collections.Minio.AccessKey = v
	}
	if v := os.Getenv("FACEFOLIO_MINIO_SECRET_KEY"); v != "" {
		c.Collections.Minio.SecretKey = v
	}
	if v := os.Getenv("FACEFOLIO_DETECTOR_URL"); v != "" {
		c.Detector.URL = v
	}
	if v := os.Getenv("FACEFOLIO_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FACEFOLIO_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
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
	r := c.Recognition
	for name, v := range map[string]float64{
		"match_threshold":        r.MatchThreshold,
		"same_face_threshold":    r.SameFaceThreshold,
		"ambiguity_max_distance": r.AmbiguityMaxDistance,
	} {
		if v < 0 || v > 2 {
			return fmt.Errorf("%s must be between 0 and 2, got %f", name, v)
		}
	}
	if r.IoUThreshold < 0 || r.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", r.IoUThreshold)
	}
	if r.SameFaceThreshold > r.AmbiguityMaxDistance {
		return fmt.Errorf("same_face_threshold (%f) must not exceed ambiguity_max_distance (%f)", r.SameFaceThreshold, r.AmbiguityMaxDistance)
	}
	if r.EmbeddingDimension < 0 {
		return fmt.Errorf("embedding_dimension must not be negative, got %d", r.EmbeddingDimension)
	}
	if _, err := recognition.ParseIndexKind(r.Index); err != nil {
		return err
	}
	if r.CropPadding < 0 || r.CropPadding > 1 {
		return fmt.Errorf("crop_padding must be between 0 and 1, got %f", r.CropPadding)
	}
	if r.CropWorkers <= 0 {
		return fmt.Errorf("crop_workers must be positive, got %d", r.CropWorkers)
	}

	switch c.Detector.Backend {
	case "http":
		if c.Detector.URL == "" {
			return fmt.Errorf("detector url is required for the http backend")
		}
	case "dlib":
		if c.Detector.ModelPath == "" {
			return fmt.Errorf("detector model_path is required for the dlib backend")
		}
	default:
		return fmt.Errorf("invalid detector backend: %s (must be http or dlib)", c.Detector.Backend)
	}
	if c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector timeout must be positive, got %d", c.Detector.Timeout)
	}

	if c.Gallery.Path == "" {
		return fmt.Errorf("gallery path is required")
	}
	if _, err := storage.ParseCompression(c.Gallery.Compression); err != nil {
		return err
	}

	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if len(c.Sessions.Redis.Addrs) == 0 {
			return fmt.Errorf("sessions redis addrs are required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid sessions backend: %s (must be memory or redis)", c.Sessions.Backend)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions ttl must not be negative, got %d", c.Sessions.TTL)
	}

	if c.Storage.ScratchDir == "" {
		return fmt.Errorf("storage scratch_dir is required")
	}

	switch c.Collections.Backend {
	case "local":
		if c.Collections.Dir == "" {
			return fmt.Errorf("collections dir is required for the local backend")
		}
	case "minio":
		if c.Collections.Minio.Endpoint == "" || c.Collections.Minio.Bucket == "" {
			return fmt.Errorf("collections minio endpoint and bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("invalid collections backend: %s (must be local or minio)", c.Collections.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.UploadRate < 0 {
		return fmt.Errorf("upload_rate must not be negative, got %f", c.Server.UploadRate)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("invalid log format: %w", err)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Gallery.Path = ExpandPath(c.Gallery.Path)
	c.Storage.ScratchDir = ExpandPath(c.Storage.ScratchDir)
	c.Collections.Dir = ExpandPath(c.Collections.Dir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the local directories the configuration names.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(filepath.Dir(c.Gallery.Path), 0700); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}

	if err := os.MkdirAll(c.Storage.ScratchDir, 0700); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}

	if c.Collections.Backend == "local" {
		if err := os.MkdirAll(c.Collections.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create collections directory: %w", err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// SessionTTL returns the configured session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTL) * time.Second
}

// DetectorTimeout returns the configured detector request timeout.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.Timeout) * time.Second
}
