package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.Warn("CHAT_SERVICE", "retrieval degraded", map[string]interface{}{"error": "timeout"})
	l.Info("CHAT_SERVICE", "no details", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "retrieval degraded", entries[0].Message)
	assert.Equal(t, "CHAT_SERVICE", ctx["module"])
	assert.Equal(t, "timeout", ctx["error_ref"])
	assert.Equal(t, map[string]interface{}{}, entries[1].ContextMap()["details"])
}
