package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/covey/internal/config"
)

func TestPoolConfig_AppliesLimits(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "db", Port: 5432, User: "town", Password: "pw", Name: "covey", SSLMode: "disable",
		MaxConns: 7, MinConns: 2, MaxConnLifetime: 3 * time.Minute,
	}
	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 3*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "covey", pc.ConnConfig.Database)
}

func TestPoolConfig_ZeroLimitsKeepPgxDefaults(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "town", Name: "covey", SSLMode: "disable"}
	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Positive(t, pc.MaxConns)
	assert.Positive(t, pc.MaxConnLifetime)
}

func TestPoolConfig_RejectsBadSSLMode(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "town", Name: "covey", SSLMode: "sometimes"}
	_, err := poolConfig(cfg)
	assert.ErrorContains(t, err, "parsing database config")
}
