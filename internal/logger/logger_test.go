package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNew_UsableAndWith(t *testing.T) {
	l, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	child := l.With(String("component", "test"))
	require.NotNil(t, child)
	assert.NotSame(t, l, child)

	child.Debug("filtered")
	child.Warn("kept", Int("n", 1), Float64("roi", 2.5), Error(errors.New("boom")))
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Info("ignored", Any("k", map[string]int{"a": 1}))
	assert.NotNil(t, l.With(Bool("ok", true)))
}
