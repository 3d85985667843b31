package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 250*time.Millisecond, cfg.ReflexTick)
	assert.Equal(t, 5*time.Second, cfg.ScriptTimeout)
	assert.Equal(t, 8, cfg.ScriptToolCap)
	assert.Equal(t, 3, cfg.BudgetDefault)
	assert.Equal(t, 5, cfg.BudgetMax)
	assert.Equal(t, 3, cfg.GuardThreshold)
	assert.Equal(t, 10, cfg.GuardWindow)
	assert.Equal(t, 30*time.Second, cfg.GuardCooldown)
	assert.False(t, cfg.Offline)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOLEM_HTTP_ADDR", ":9999")
	t.Setenv("GOLEM_OFFLINE", "true")
	t.Setenv("GOLEM_REFLEX_TICK", "100ms")
	t.Setenv("GOLEM_MAX_DISTANCE", "16.5")
	t.Setenv("GOLEM_SCRIPT_TOOL_CAP", "4")
	t.Setenv("GOLEM_GUARD_THRESHOLD", "5")
	t.Setenv("GOLEM_GUARD_WINDOW", "20")
	t.Setenv("GOLEM_GUARD_COOLDOWN", "1m")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.True(t, cfg.Offline)
	assert.Equal(t, 100*time.Millisecond, cfg.ReflexTick)
	assert.Equal(t, 16.5, cfg.MaxDistance)
	assert.Equal(t, 4, cfg.ScriptToolCap)
	assert.Equal(t, 5, cfg.GuardThreshold)
	assert.Equal(t, 20, cfg.GuardWindow)
	assert.Equal(t, time.Minute, cfg.GuardCooldown)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("GOLEM_REFLEX_TICK", "soon")
	t.Setenv("GOLEM_BUDGET_DEFAULT", "lots")
	t.Setenv("GOLEM_OFFLINE", "maybe")

	cfg := Load()

	assert.Equal(t, 250*time.Millisecond, cfg.ReflexTick)
	assert.Equal(t, 3, cfg.BudgetDefault)
	assert.False(t, cfg.Offline)
}
