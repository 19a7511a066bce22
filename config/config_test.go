package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/stalker/game/ai"
	"github.com/kasuganosora/stalker/game/director"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesKeepPackageDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
engine:
  agents: [a, b]
  world:
    tick_interval: 20ms
agent:
  hunt_speed_multiplier: 2.5
  perception:
    grace: 500ms
director:
  upper_threshold: 70
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.Engine.Agents)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.World.TickInterval)
	assert.Equal(t, 64, cfg.Engine.World.CommandBuffer, "unset world keys keep their defaults")

	assert.Equal(t, 2.5, cfg.Agent.HuntSpeedMultiplier)
	assert.Equal(t, 500*time.Millisecond, cfg.Agent.Perception.Grace)
	assert.Equal(t, ai.DefaultConfig().TravelSpeedMultiplier, cfg.Agent.TravelSpeedMultiplier)
	assert.Equal(t, ai.DefaultConfig().Kill, cfg.Agent.Kill)

	assert.Equal(t, 70, cfg.Director.UpperThreshold)
	assert.Equal(t, director.DefaultConfig().LowerThreshold, cfg.Director.LowerThreshold)
}

func TestLoad_InfraDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  debug: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, []string{"stalker"}, cfg.Engine.Agents)
	assert.Equal(t, 30*time.Second, cfg.Engine.AutosaveInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalGCInterval)
	assert.Equal(t, 40, cfg.Security.RateLimitBurst)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
