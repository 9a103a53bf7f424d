package eventpipe

import (
	"context"
	"log/slog"
	"testing"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetupLoggingAppliesLevel(t *testing.T) {
	restoreDefaultLogger(t)
	ctx := context.Background()

	SetupLogging("error")
	if slog.Default().Enabled(ctx, slog.LevelInfo) {
		t.Error("info logging enabled after SetupLogging(\"error\")")
	}

	SetupLogging("debug")
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		t.Error("debug logging disabled after SetupLogging(\"debug\")")
	}
}

func TestNewFromConfigAppliesLoggingLevel(t *testing.T) {
	restoreDefaultLogger(t)
	ctx := context.Background()

	cfg := &Config{
		Primary:   "x",
		Secondary: "y",
		Logging:   LoggingConfig{Level: "error"},
	}
	if _, err := NewFromConfig(cfg); err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if slog.Default().Enabled(ctx, slog.LevelWarn) {
		t.Error("warn logging enabled after NewFromConfig with level error")
	}
}
