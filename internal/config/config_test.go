package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_NAME", "tally_env")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tally_env", cfg.Database.DBName)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "ledger_changes", cfg.Kafka.Topic)
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	cfg := LoadConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")
	content := `
server:
  port: 7000
database:
  host: db.internal
  name: tally_prod
auth:
  tokenTTL: 2h
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("DB_HOST", "override.internal")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, "tally_prod", cfg.Database.DBName)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	db := Defaults().Database
	assert.Equal(t, "host=localhost port=5432 user=postgres password=password dbname=tally sslmode=disable", db.GetDSN())
}
