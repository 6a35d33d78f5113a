package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 18, cfg.World.Radius)
	assert.Equal(t, [3]float64{0, 4, 10}, cfg.World.Spawn)
	assert.Equal(t, 3*time.Second, cfg.Simulation.AutosaveInterval())
	assert.Equal(t, 50*time.Millisecond, cfg.Simulation.MaxStep())
	assert.Equal(t, 2*time.Second, cfg.Persistence.Timeout())
}

func TestLoad_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
world:
  radius: 8
  seed: 1234
physics:
  wall_collision: true
persistence:
  backend: badger
  path: /tmp/voxel
server:
  rest_port: 9090
  open_hotkeys: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.World.Radius)
	assert.Equal(t, int64(1234), cfg.World.Seed)
	assert.Equal(t, 10, cfg.World.Trees, "Незаданные поля сохраняют значения по умолчанию")
	assert.True(t, cfg.Physics.WallCollision)
	assert.Equal(t, 28.0, cfg.Physics.Gravity)
	assert.Equal(t, "badger", cfg.Persistence.GetBackend())
	assert.Equal(t, 9090, cfg.Server.GetRESTPort())
	assert.True(t, cfg.Server.OpenHotkeys)
	assert.False(t, Default().Server.OpenHotkeys, "По умолчанию горячие клавиши моста требуют токена")
}

func TestLoad_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  tick_rate: 30\n"), 0644))
	t.Setenv("VOXEL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Simulation.TickRate)
}

func TestLoad_NoConfig(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.Player.Height = 0
	cfg.Interaction.Placement = "capsule"
	cfg.EventBus.Backend = "kafka"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capsule")
	assert.Contains(t, err.Error(), "kafka")
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("VOXEL_REST_PORT", "7001")
	t.Setenv("VOXEL_STORAGE_BACKEND", "sqlite")
	t.Setenv("NATS_URL", "nats://bus:4222")

	var server ServerConfig
	assert.Equal(t, 7001, server.GetRESTPort())

	var persistence PersistenceConfig
	assert.Equal(t, "sqlite", persistence.GetBackend())

	var bus EventBusConfig
	assert.Equal(t, "nats://bus:4222", bus.GetURL())

	t.Setenv("VOXEL_REST_PORT", "not-a-port")
	assert.Equal(t, 8088, server.GetRESTPort())
}
