package cliconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/bulkship/pkg/ship"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	falseVal := false
	zero := 0
	level := 9
	jitter := 0.5
	n500, n10, n1024, n8 := 500, 10, 1024, 8

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Endpoint:         "https://ingest.example.com",
				TargetBatchCount: &n500,
				BackoffBase:      "2s",
				IdempotencyKeys:  &falseVal,
			},
			changed: map[string]bool{},
			initial: Config{IdempotencyKeys: true},
			expected: Config{
				Endpoint:         "https://ingest.example.com",
				TargetBatchCount: 500,
				BackoffBase:      2 * time.Second,
				IdempotencyKeys:  false,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Endpoint:  "https://from-file",
				AuthToken: "file-token",
			},
			changed: map[string]bool{"endpoint": true},
			initial: Config{Endpoint: "https://from-flag"},
			expected: Config{
				Endpoint:  "https://from-flag", // unchanged because flag was set
				AuthToken: "file-token",
			},
		},
		{
			name: "zero retries from file is applied",
			fileConfig: FileConfig{
				MaxRetries: &zero,
			},
			changed:  map[string]bool{},
			initial:  Config{MaxRetries: 5},
			expected: Config{MaxRetries: 0},
		},
		{
			name: "explicit zero counts are kept for validation",
			fileConfig: FileConfig{
				TargetBatchCount: &zero,
				MaxPayloadBytes:  &zero,
				WorkerCount:      &zero,
			},
			changed:  map[string]bool{},
			initial:  Config{TargetBatchCount: 1000, MaxPayloadBytes: 5 << 20, WorkerCount: 4},
			expected: Config{},
		},
		{
			name:     "absent counts keep defaults",
			changed:  map[string]bool{},
			initial:  Config{TargetBatchCount: 1000, WorkerCount: 4},
			expected: Config{TargetBatchCount: 1000, WorkerCount: 4},
		},
		{
			name: "returns error for invalid duration",
			fileConfig: FileConfig{
				RequestTimeout: "soon",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "handles all field types correctly",
			fileConfig: FileConfig{
				Endpoint:         "http://example.com/ingest",
				AuthToken:        "secret",
				TargetBatchCount: &n10,
				MaxPayloadBytes:  &n1024,
				MaxRetries:       &level,
				BackoffBase:      "1s",
				BackoffMax:       "1m",
				BackoffJitter:    &jitter,
				RequestTimeout:   "30s",
				FailureLogDir:    "/failed",
				WorkerCount:      &n8,
				CompressionLevel: &level,
				IdempotencyKeys:  &trueVal,
				UserAgent:        "agent/1",
				Source:           "orders",
				InboxDir:         "/inbox",
				DoneDir:          "/done",
				WatchDebounce:    "250ms",
				LogLevel:         "debug",
				LogFormat:        "json",
				MetricsAddr:      ":9090",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Endpoint:         "http://example.com/ingest",
				AuthToken:        "secret",
				TargetBatchCount: 10,
				MaxPayloadBytes:  1024,
				MaxRetries:       9,
				BackoffBase:      time.Second,
				BackoffMax:       time.Minute,
				BackoffJitter:    0.5,
				RequestTimeout:   30 * time.Second,
				FailureLogDir:    "/failed",
				WorkerCount:      8,
				CompressionLevel: 9,
				IdempotencyKeys:  true,
				UserAgent:        "agent/1",
				Source:           "orders",
				InboxDir:         "/inbox",
				DoneDir:          "/done",
				WatchDebounce:    250 * time.Millisecond,
				LogLevel:         "debug",
				LogFormat:        "json",
				MetricsAddr:      ":9090",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyFileConfig() =\n%+v\nwant\n%+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
endpoint = "https://ingest.example.com"
target_batch_count = 250
max_retries = 0
backoff_base = "1s"
backoff_jitter = 0.1
idempotency_keys = false
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Endpoint != "https://ingest.example.com" {
		t.Errorf("Endpoint = %v, want https://ingest.example.com", fc.Endpoint)
	}
	if fc.TargetBatchCount == nil || *fc.TargetBatchCount != 250 {
		t.Errorf("TargetBatchCount = %v, want 250", fc.TargetBatchCount)
	}
	if fc.MaxRetries == nil || *fc.MaxRetries != 0 {
		t.Errorf("MaxRetries = %v, want 0", fc.MaxRetries)
	}
	if fc.BackoffBase != "1s" {
		t.Errorf("BackoffBase = %v, want 1s", fc.BackoffBase)
	}
	if fc.BackoffJitter == nil || *fc.BackoffJitter != 0.1 {
		t.Errorf("BackoffJitter = %v, want 0.1", fc.BackoffJitter)
	}
	if fc.IdempotencyKeys == nil || *fc.IdempotencyKeys {
		t.Errorf("IdempotencyKeys = %v, want false", fc.IdempotencyKeys)
	}
}

func TestLoadFileConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bulkship.yaml")

	yamlContent := `
endpoint: https://ingest.example.com
auth_token: yaml-token
worker_count: 2
request_timeout: 45s
compression_level: -1
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}
	if cfg.AuthToken != "yaml-token" {
		t.Errorf("AuthToken = %v, want yaml-token", cfg.AuthToken)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %v, want 2", cfg.WorkerCount)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.RequestTimeout)
	}
	if cfg.CompressionLevel != -1 {
		t.Errorf("CompressionLevel = %v, want -1", cfg.CompressionLevel)
	}
}

func TestLoadFileConfig_NonPositiveCountsRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero batch count", "target_batch_count = 0\n", "target batch count"},
		{"negative workers", "worker_count = -2\n", "worker count"},
		{"zero payload limit", "max_payload_bytes = 0\n", "max payload bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "bulkship.toml")
			content := "endpoint = \"https://ingest.example.com\"\nauth_token = \"token\"\n" + tt.content
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			fc, err := LoadFileConfig(configPath)
			if err != nil {
				t.Fatalf("LoadFileConfig() error = %v", err)
			}
			cfg := DefaultConfig()
			cfg.FailureLogDir = t.TempDir()
			if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
				t.Fatalf("ApplyFileConfig() error = %v", err)
			}

			err = cfg.Validate()
			if !errors.Is(err, ship.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
endpoint = "https://x"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestLoadFileConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yml")
	if err := os.WriteFile(configPath, []byte("endpoint: [unterminated\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	if _, err := LoadFileConfig(configPath); err == nil {
		t.Error("LoadFileConfig() expected error for invalid YAML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	// Should return a path containing .bulkship
	if path != "" && !strings.Contains(path, ".bulkship") {
		t.Errorf("DefaultConfigPath() = %v, should contain .bulkship", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
