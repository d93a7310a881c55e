package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/docchat/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn should be enabled")
	}
}

func TestNewDevelopment(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug", Development: true})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be enabled")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
