package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"FILEBOX_API_URL", "FILEBOX_DB", "FILEBOX_DATA_DIR", "FILEBOX_OWNER", configDirEnvKey, trustProjectConfigEnvKey} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.DigestAlgorithm != "sha256" {
		t.Fatalf("expected sha256 default, got %q", cfg.Storage.DigestAlgorithm)
	}
	if cfg.Storage.Compression != "none" {
		t.Fatalf("expected no compression by default, got %q", cfg.Storage.Compression)
	}
	if cfg.Storage.ResolveAttempts != 5 {
		t.Fatalf("expected 5 resolve attempts, got %d", cfg.Storage.ResolveAttempts)
	}
	if cfg.Storage.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected max upload default %d, got %d", DefaultMaxUploadBytes, cfg.Storage.MaxUploadBytes)
	}
	if cfg.Storage.MaxFilesPerOwner != 50 {
		t.Fatalf("expected 50 files per owner, got %d", cfg.Storage.MaxFilesPerOwner)
	}
	if cfg.OrphanGraceDuration() != time.Hour {
		t.Fatalf("expected 1h orphan grace, got %v", cfg.OrphanGraceDuration())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[storage]
digest_algorithm = "blake3"
compression = "zstd"
max_files_per_owner = 0
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Storage.DigestAlgorithm != "blake3" || cfg.Storage.Compression != "zstd" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.MaxFilesPerOwner != 0 {
		t.Fatalf("expected quota disabled, got %d", cfg.Storage.MaxFilesPerOwner)
	}
	if cfg.Storage.ResolveAttempts != DefaultResolveAttempts {
		t.Fatalf("expected untouched keys to keep defaults, got %d", cfg.Storage.ResolveAttempts)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.filebox.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("api_url = \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"data_dir",
		"log_level",
		"owner",
		"storage.digest_algorithm",
		"storage.compression",
		"storage.max_files_per_owner",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	for _, key := range []string{"", "project_prefix", "storage", "storage.unknown"} {
		if IsAllowedKey(key) {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.Owner = "alice"
	tests := []struct {
		key  string
		want string
	}{
		{"api_url", DefaultAPIURL},
		{"log_level", DefaultLogLevel},
		{"owner", "alice"},
		{"storage.digest_algorithm", "sha256"},
		{"storage.max_upload_bytes", "104857600"},
		{"storage.max_files_per_owner", "50"},
		{"storage.orphan_grace", "1h0m0s"},
	}
	for _, tt := range tests {
		got, err := cfg.Get(tt.key)
		if err != nil {
			t.Fatalf("get %s: %v", tt.key, err)
		}
		if got != tt.want {
			t.Fatalf("get %s = %q, want %q", tt.key, got, tt.want)
		}
	}
	if _, err := cfg.Get("nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", configFileName)
	if err := SetKey(path, "api_url", "http://127.0.0.1:9000"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected api_url to be written, got %q", cfg.APIURL)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("api_url = \"http://a\"\nowner = \"bob\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := SetKey(path, "api_url", "http://b"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://b" {
		t.Fatalf("expected updated api_url, got %q", cfg.APIURL)
	}
	if cfg.Owner != "bob" {
		t.Fatalf("expected other keys preserved, got owner %q", cfg.Owner)
	}
}

func TestSetNestedStorageKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := SetKey(path, "storage.max_files_per_owner", "7"); err != nil {
		t.Fatalf("set nested key: %v", err)
	}
	if err := SetKey(path, "storage.compression", "LZ4"); err != nil {
		t.Fatalf("set compression: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.MaxFilesPerOwner != 7 {
		t.Fatalf("expected max_files_per_owner 7, got %d", cfg.Storage.MaxFilesPerOwner)
	}
	if cfg.Storage.Compression != "lz4" {
		t.Fatalf("expected lz4, got %q", cfg.Storage.Compression)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	tests := []struct {
		key   string
		value string
	}{
		{"invalid_key", "value"},
		{"storage.digest_algorithm", "md5"},
		{"storage.compression", "gzip"},
		{"storage.resolve_attempts", "0"},
		{"storage.max_upload_bytes", "-1"},
		{"storage.max_files_per_owner", "-1"},
		{"storage.orphan_grace", "soon"},
		{"log_level", "loud"},
	}
	for _, tt := range tests {
		if err := SetKey(path, tt.key, tt.value); err == nil {
			t.Fatalf("expected error for %s=%s", tt.key, tt.value)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("rejected values must not create the file, stat err=%v", err)
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, configFileName), []byte("api_url = \"http://127.0.0.1:9001\"\n"), 0o644); err != nil {
		t.Fatalf("write override config: %v", err)
	}

	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("api_url = \"http://127.0.0.1:9002\"\n"), 0o644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}
	chdir(t, workspace)

	t.Setenv(configDirEnvKey, configDir)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url override, got %q", cfg.APIURL)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
	if cfg.DataDir != filepath.Join(workspace, DefaultDataDirName) {
		t.Fatalf("expected default workspace data dir, got %q", cfg.DataDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FILEBOX_API_URL", "http://example.com:8080")
	t.Setenv("FILEBOX_DB", "/tmp/override.db")
	t.Setenv("FILEBOX_DATA_DIR", "/tmp/override-data")
	t.Setenv("FILEBOX_OWNER", "carol")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.DBPath)
	}
	if cfg.DataDir != "/tmp/override-data" {
		t.Fatalf("expected env override for data dir, got %q", cfg.DataDir)
	}
	if cfg.Owner != "carol" {
		t.Fatalf("expected env override for owner, got %q", cfg.Owner)
	}
}

func TestLoadFallsBackToDefaultsWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	chdir(t, t.TempDir())

	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"\"\n[storage]\ndigest_algorithm = \"\"\nresolve_attempts = 0\ncheck_workers = -2\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.DigestAlgorithm != "sha256" {
		t.Fatalf("expected default digest, got %q", cfg.Storage.DigestAlgorithm)
	}
	if cfg.Storage.ResolveAttempts != DefaultResolveAttempts || cfg.Storage.CheckWorkers != DefaultCheckWorkers {
		t.Fatalf("expected default counts, got %+v", cfg.Storage)
	}
}

func TestLoadRejectsUnknownAlgorithm(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	chdir(t, t.TempDir())
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("[storage]\ndigest_algorithm = \"md5\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	t.Setenv("HOME", homeDir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "storage.digest_algorithm") {
		t.Fatalf("expected digest algorithm error, got %v", err)
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdir(t, workspace)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected untrusted project config to be ignored, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("api_url = \"http://home\"\nowner = \"home-owner\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	t.Setenv("HOME", homeDir)

	workspace := t.TempDir()
	projectPath := filepath.Join(workspace, configFileName)
	if err := os.WriteFile(projectPath, []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdir(t, workspace)
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://project" {
		t.Fatalf("expected trusted project api_url, got %q", cfg.APIURL)
	}
	if cfg.Owner != "home-owner" {
		t.Fatalf("expected home owner to survive project overlay, got %q", cfg.Owner)
	}
	if cfg.TrustedProjectConfigPath != projectPath {
		t.Fatalf("expected trusted project path %q, got %q", projectPath, cfg.TrustedProjectConfigPath)
	}
}

func TestLoadDoesNotTrustProjectConfigOnInvalidEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdir(t, workspace)
	t.Setenv(trustProjectConfigEnvKey, "definitely")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected project config ignored, got %q", cfg.APIURL)
	}
}
