package eventpipe

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLoadConfigWithFs_ValidConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	configYAML := `
primary: tool-out
secondary: tool-in
connect_timeout: 2s
logging:
  level: debug
`
	afero.WriteFile(fs, "/config.yaml", []byte(configYAML), 0644)

	cfg, err := LoadConfigWithFs("/config.yaml", fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Primary != "tool-out" {
		t.Errorf("expected primary 'tool-out', got %q", cfg.Primary)
	}
	if cfg.Secondary != "tool-in" {
		t.Errorf("expected secondary 'tool-in', got %q", cfg.Secondary)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("expected connect timeout 2s, got %v", cfg.ConnectTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level 'debug', got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigWithFs_DefaultValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Minimal config - should use defaults for timeout and logging
	configYAML := `
primary: a
secondary: b
`
	afero.WriteFile(fs, "/config.yaml", []byte(configYAML), 0644)

	cfg, err := LoadConfigWithFs("/config.yaml", fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("expected default connect timeout, got %v", cfg.ConnectTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected default logging level 'warn', got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigWithFs_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := LoadConfigWithFs("/nope.yaml", fs); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNewFromConfig(t *testing.T) {
	ep, err := NewFromConfig(&Config{Primary: "x", Secondary: "y", ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.connectTimeout != time.Second {
		t.Errorf("expected connect timeout 1s, got %v", ep.connectTimeout)
	}

	if _, err := NewFromConfig(&Config{Primary: "x", Secondary: "x"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for equal names, got %v", err)
	}
}
