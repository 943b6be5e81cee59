package config

import (
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Stream.BufferSize != 2048 {
		t.Errorf("Expected buffer size 2048, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Stream.SyncThreshold != 256*1024 {
		t.Errorf("Expected sync threshold 262144, got %d", cfg.Stream.SyncThreshold)
	}
	if cfg.Transfer.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("Expected timeout %d, got %d", DefaultTimeoutSeconds, cfg.Transfer.TimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestParse_YAML(t *testing.T) {
	yamlConfig := `
stream:
  buffer_size: 4096
transfer:
  timeout_seconds: 10
  max_redirects: 2
  user_agent: test/1.0
storage:
  root: /tmp/downloads
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to parse YAML config: %v", err)
	}

	if cfg.Stream.BufferSize != 4096 {
		t.Errorf("Expected buffer size 4096, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Transfer.TimeoutSeconds != 10 {
		t.Errorf("Expected timeout 10, got %d", cfg.Transfer.TimeoutSeconds)
	}
	if cfg.Transfer.UserAgent != "test/1.0" {
		t.Errorf("Expected user agent test/1.0, got %s", cfg.Transfer.UserAgent)
	}
	if cfg.Storage.Root != "/tmp/downloads" {
		t.Errorf("Expected storage root /tmp/downloads, got %s", cfg.Storage.Root)
	}

	// Untouched fields keep their defaults
	if cfg.Transfer.MaxHeaders != 16 {
		t.Errorf("Expected max headers default 16, got %d", cfg.Transfer.MaxHeaders)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "zero buffer size",
			yaml:    "stream:\n  buffer_size: 0\n",
			wantErr: "buffer_size",
		},
		{
			name:    "timeout too large",
			yaml:    "transfer:\n  timeout_seconds: 500\n",
			wantErr: "timeout_seconds",
		},
		{
			name:    "negative redirects",
			yaml:    "transfer:\n  max_redirects: -1\n",
			wantErr: "max_redirects",
		},
		{
			name:    "malformed yaml",
			yaml:    "stream: [",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in     int
		want   int
		wantOK bool
	}{
		{1, 1, true},
		{30, 30, true},
		{120, 120, true},
		{0, DefaultTimeoutSeconds, false},
		{121, DefaultTimeoutSeconds, false},
		{-5, DefaultTimeoutSeconds, false},
	}

	for _, tt := range tests {
		got, ok := ClampTimeout(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ClampTimeout(%d) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
