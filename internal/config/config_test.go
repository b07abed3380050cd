package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_ChatDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 5, cfg.Chat.DefaultContextLimit)
	assert.Equal(t, RetrievalPolicySilent, cfg.Chat.RetrievalFailurePolicy)
	assert.Equal(t, 5*time.Second, cfg.Chat.RetrievalTimeout)
	assert.Equal(t, 15*time.Second, cfg.Chat.KeepAliveInterval)
}

func TestLoad_ChatOverrides(t *testing.T) {
	t.Setenv("CHAT_DEFAULT_CONTEXT_LIMIT", "8")
	t.Setenv("CHAT_MAX_CONTEXT_LIMIT", "4")
	t.Setenv("RETRIEVAL_TIMEOUT", "2")
	t.Setenv("RETRIEVAL_FAILURE_POLICY", "WARN")
	t.Setenv("STREAM_KEEPALIVE_INTERVAL", "500ms")

	cfg := Load()

	assert.Equal(t, 8, cfg.Chat.DefaultContextLimit)
	assert.Equal(t, 8, cfg.Chat.MaxContextLimit)
	assert.Equal(t, 2*time.Second, cfg.Chat.RetrievalTimeout)
	assert.Equal(t, RetrievalPolicyWarn, cfg.Chat.RetrievalFailurePolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.Chat.KeepAliveInterval)
}

func TestLoad_UnknownPolicyFallsBackToSilent(t *testing.T) {
	t.Setenv("RETRIEVAL_FAILURE_POLICY", "explode")
	assert.Equal(t, RetrievalPolicySilent, Load().Chat.RetrievalFailurePolicy)
}
