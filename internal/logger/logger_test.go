package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"fatal":   zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNamedAndWithCarryFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).Named("pipeline").With(String("identity", "42"))

	log.Warn("post failed", Error(errors.New("boom")), Int("attempt", 2))
	log.Debugf("retrying %s", "telegram")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "pipeline", entries[0].LoggerName)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	require.Equal(t, "42", ctx["identity"])
	require.Equal(t, int64(2), ctx["attempt"])
	require.Equal(t, "boom", ctx["error"])
	require.Equal(t, "retrying telegram", entries[1].Message)
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Info("ignored", Bool("ok", true))
	require.NoError(t, log.Sync())
}
