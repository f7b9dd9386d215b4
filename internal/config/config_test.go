package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"LISTEN_ADDR", "DATABASE_URL", "JWT_SECRET", "PRICE_POLL_INTERVAL", "MATCH_WORKERS", "STORE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.PricePollTick)
	assert.Equal(t, 4, cfg.MatchWorkers)
	assert.False(t, cfg.MemoryStore)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("PRICE_POLL_INTERVAL", "5s")
	t.Setenv("MATCH_WORKERS", "8")
	t.Setenv("STORE", "memory")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.PricePollTick)
	assert.Equal(t, 8, cfg.MatchWorkers)
	assert.True(t, cfg.MemoryStore)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("PRICE_POLL_INTERVAL", "soon")
	t.Setenv("MATCH_WORKERS", "many")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.PricePollTick)
	assert.Equal(t, 4, cfg.MatchWorkers)
}
