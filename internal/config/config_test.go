package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/config"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mycelia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
graph_id: prod
workers: 8
storage:
  kind: badger
  path: /tmp/mycelia-data
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.GraphID)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "badger", cfg.Storage.Kind)
	// Untouched sections keep their defaults.
	assert.Equal(t, "inmemory", cfg.Broker.Kind)
}

func TestValidate_RejectsUnknownBrokerKind(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Kind = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresPathForBadger(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Kind = "badger"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresListenAddrForWS(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.Kind = "ws"
	assert.Error(t, cfg.Validate())
}
