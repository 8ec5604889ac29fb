package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "WARN"})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}

	logger = NewLogger(Config{Level: "nonsense"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("unparseable level should fall back to info, got %s", logger.GetLevel())
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricewatch.log")
	logger := NewLogger(Config{Level: "info", File: FileConfig{Path: path, MaxSizeMB: 1}})

	logger.Info().Str("chain", "ethereum").Msg("sample recorded")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if !strings.Contains(string(data), `"chain":"ethereum"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
}
