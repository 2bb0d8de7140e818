package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"filebox/internal/blobstore"
	"filebox/internal/hasher"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7480"
	DefaultDBFileName  = ".filebox.db"
	DefaultDataDirName = ".filebox"
	DefaultLogLevel    = "info"

	DefaultMaxUploadBytes   int64 = 100 * 1024 * 1024
	DefaultMaxFilesPerOwner       = 50
	DefaultResolveAttempts        = 5
	DefaultCheckWorkers           = 4
	DefaultOrphanGrace            = time.Hour

	configFileName           = ".filebox.toml"
	configDirEnvKey          = "FILEBOX_CONFIG_DIR"
	trustProjectConfigEnvKey = "FILEBOX_TRUST_PROJECT_CONFIG"
)

// StorageConfig tunes content storage and deduplication.
type StorageConfig struct {
	DigestAlgorithm  string `toml:"digest_algorithm"`
	Compression      string `toml:"compression"`
	ResolveAttempts  int    `toml:"resolve_attempts"`
	MaxUploadBytes   int64  `toml:"max_upload_bytes"`
	MaxFilesPerOwner int    `toml:"max_files_per_owner"`
	CheckWorkers     int    `toml:"check_workers"`
	OrphanGrace      string `toml:"orphan_grace"`
}

// Config defines runtime configuration for filebox.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	DataDir                  string        `toml:"data_dir"`
	LogLevel                 string        `toml:"log_level"`
	Owner                    string        `toml:"owner"`
	Storage                  StorageConfig `toml:"storage"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		DataDir:  "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			DigestAlgorithm:  hasher.DefaultAlgorithm,
			Compression:      blobstore.CodecNone,
			ResolveAttempts:  DefaultResolveAttempts,
			MaxUploadBytes:   DefaultMaxUploadBytes,
			MaxFilesPerOwner: DefaultMaxFilesPerOwner,
			CheckWorkers:     DefaultCheckWorkers,
			OrphanGrace:      DefaultOrphanGrace.String(),
		},
	}
}

// OrphanGraceDuration parses storage.orphan_grace, falling back to the
// default on an invalid value.
func (c *Config) OrphanGraceDuration() time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(c.Storage.OrphanGrace))
	if err != nil || parsed <= 0 {
		return DefaultOrphanGrace
	}
	return parsed
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"data_dir",
	"log_level",
	"owner",
	"storage.digest_algorithm",
	"storage.compression",
	"storage.resolve_attempts",
	"storage.max_upload_bytes",
	"storage.max_files_per_owner",
	"storage.check_workers",
	"storage.orphan_grace",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "data_dir":
		return c.DataDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "owner":
		return c.Owner, nil
	case "storage.digest_algorithm":
		return c.Storage.DigestAlgorithm, nil
	case "storage.compression":
		return c.Storage.Compression, nil
	case "storage.resolve_attempts":
		return strconv.Itoa(c.Storage.ResolveAttempts), nil
	case "storage.max_upload_bytes":
		return strconv.FormatInt(c.Storage.MaxUploadBytes, 10), nil
	case "storage.max_files_per_owner":
		return strconv.Itoa(c.Storage.MaxFilesPerOwner), nil
	case "storage.check_workers":
		return strconv.Itoa(c.Storage.CheckWorkers), nil
	case "storage.orphan_grace":
		return c.Storage.OrphanGrace, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if apiURL := os.Getenv("FILEBOX_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("FILEBOX_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if dataDir := os.Getenv("FILEBOX_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if owner := os.Getenv("FILEBOX_OWNER"); owner != "" {
		cfg.Owner = owner
	}

	if cwd, err := os.Getwd(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
		if cfg.DataDir == "" {
			cfg.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}

	if err := cfg.normalizeStorage(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.resolve_attempts", "storage.check_workers":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.max_files_per_owner":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "storage.digest_algorithm":
		if _, err := hasher.ByName(value); err != nil {
			return nil, fmt.Errorf("%s must be one of %s", key, strings.Join(hasher.Algorithms(), ", "))
		}
		return strings.ToLower(value), nil
	case "storage.compression":
		if _, err := blobstore.CodecByName(value); err != nil {
			return nil, fmt.Errorf("%s must be one of none, zstd, lz4", key)
		}
		return strings.ToLower(value), nil
	case "storage.orphan_grace":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return value, nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of debug, info, warn, error", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeStorage() error {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Storage.ResolveAttempts <= 0 {
		c.Storage.ResolveAttempts = DefaultResolveAttempts
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Storage.MaxFilesPerOwner < 0 {
		c.Storage.MaxFilesPerOwner = 0
	}
	if c.Storage.CheckWorkers <= 0 {
		c.Storage.CheckWorkers = DefaultCheckWorkers
	}

	c.Storage.DigestAlgorithm = strings.ToLower(strings.TrimSpace(c.Storage.DigestAlgorithm))
	if c.Storage.DigestAlgorithm == "" {
		c.Storage.DigestAlgorithm = hasher.DefaultAlgorithm
	}
	if _, err := hasher.ByName(c.Storage.DigestAlgorithm); err != nil {
		return fmt.Errorf("storage.digest_algorithm: %w", err)
	}

	c.Storage.Compression = strings.ToLower(strings.TrimSpace(c.Storage.Compression))
	if c.Storage.Compression == "" {
		c.Storage.Compression = blobstore.CodecNone
	}
	if _, err := blobstore.CodecByName(c.Storage.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}
	return nil
}
