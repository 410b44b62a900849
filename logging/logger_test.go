package logging

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopkit/cartsync/errors"
)

func TestLogger(t *testing.T) {
	configs := []Config{
		{Level: "debug", Format: "text", Environment: EnvDevelopment, AddSource: true},
		{Level: "info", Format: "json", Environment: EnvProduction, AddSource: false},
	}

	for _, config := range configs {
		t.Run("Environment_"+config.Environment, func(t *testing.T) {
			logger := NewLogger(config)

			logger.Debug("Debug message", slog.String("key", "value"))
			logger.Info("Info message", slog.Int("count", 42))
			logger.Warn("Warning message", slog.Bool("enabled", true))

			// Structured errors render through the SyncErrorValuer.
			testErr := errors.NewStorageError(errors.OpSave, fmt.Errorf("disk full"))
			logger.LogError(context.Background(), testErr, "Operation failed")

			// Plain errors still log.
			logger.LogError(context.Background(), fmt.Errorf("plain failure"), "Operation failed",
				"product_id", "p1")

			childLogger := logger.WithComponent(Component("test")).WithList("cart")
			childLogger.Info("Child logger message")

			err := logger.LogOperation(
				context.Background(),
				Operation("test_op"),
				Component("test_component"),
				func() error {
					time.Sleep(10 * time.Millisecond)
					return nil
				},
			)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLogOperationPropagatesFailure(t *testing.T) {
	logger := NewLogger(Config{Level: "error", Format: "text", Environment: EnvTest})

	wantErr := fmt.Errorf("boom")
	err := logger.LogOperation(context.Background(), Operation("op"), Component("comp"), func() error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("LogOperation() error = %v, want %v", err, wantErr)
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", EnvProduction)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	config := GetConfigFromEnv()
	if config.Environment != EnvProduction {
		t.Errorf("Environment = %q, want %q", config.Environment, EnvProduction)
	}
	if config.Level != "warn" {
		t.Errorf("Level = %q, want warn", config.Level)
	}
	if config.AddSource {
		t.Error("AddSource should be disabled in production")
	}

	t.Setenv("ENVIRONMENT", EnvDevelopment)
	config = GetConfigFromEnv()
	if !config.AddSource {
		t.Error("AddSource should be enabled in development")
	}
}
