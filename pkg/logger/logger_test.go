package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

func TestToZapLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"nonsense", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := toZapLevel(tt.in); got != tt.want {
			t.Errorf("toZapLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextLogger(t *testing.T) {
	if _, ok := FromContext(context.Background()).(*noOpLogger); !ok {
		t.Error("FromContext without a logger should return the no-op logger")
	}

	l := NewZapLogger(config.Logger{Level: "debug", Name: "test"})
	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != Logger(l) {
		t.Error("FromContext did not return the stored logger")
	}

	child := l.With("component", "test")
	child.Debug("debug message", "k", 1)
	child.Info("info message")
	_ = l.Sync()
}
