package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "API_KEY_SECRET", "test-secret")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultDBMaxConns, cfg.DBMaxConns)
	assert.Equal(t, "ledger", cfg.DBName)
}

func TestLoad_MissingAPIKeySecret(t *testing.T) {
	setEnv(t, "API_KEY_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY_SECRET is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid",
			config: Config{
				APIKeySecret:       "s",
				Port:               "8080",
				DBMaxConns:         10,
				DBStatementTimeout: 30000,
			},
		},
		{
			name: "bad port",
			config: Config{
				APIKeySecret:       "s",
				Port:               "not-a-port",
				DBMaxConns:         10,
				DBStatementTimeout: 30000,
			},
			wantErr: "PORT must be a number",
		},
		{
			name: "zero max connections",
			config: Config{
				APIKeySecret:       "s",
				Port:               "8080",
				DBMaxConns:         0,
				DBStatementTimeout: 30000,
			},
			wantErr: "MAX_CONNECTIONS must be at least 1",
		},
		{
			name: "statement timeout too low",
			config: Config{
				APIKeySecret:       "s",
				Port:               "8080",
				DBMaxConns:         10,
				DBStatementTimeout: 10,
			},
			wantErr: "POSTGRES_STATEMENT_TIMEOUT must be at least 1000ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{DBHost: "db", DBUsername: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "dbname=n")

	cfg.DatabaseURLRaw = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}
