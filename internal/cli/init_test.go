package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"smartbudget/internal/config"
	"smartbudget/internal/log"
)

func TestSetupLoggerLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugOn   bool
		infoOn    bool
		component string
	}{
		{"debug", true, true, "server"},
		{"info", false, true, "worker"},
		{"error", false, false, "server"},
		{"loud", false, true, "server"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(tt.level, tt.component)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOn)
			}
			if logger.Component() != tt.component {
				t.Errorf("component = %q", logger.Component())
			}
		})
	}
}

func TestConnectAMQPDisabled(t *testing.T) {
	logger := log.NewText(io.Discard, slog.LevelError, "test")
	if c := ConnectAMQP(logger, &config.Config{}); c != nil {
		t.Fatal("expected nil client without a broker URL")
	}
}
