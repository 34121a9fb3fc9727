package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_SOURCE", "memory")
	t.Setenv("PORT", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("MAX_PARTICIPANTS", "")
	t.Setenv("RESULTS_CACHE_TTL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DataSourceMemory, cfg.DataSource)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 0, cfg.MaxParticipants)
	assert.Equal(t, 24*time.Hour, cfg.ResultsCacheTTL)
	assert.Equal(t, 120, cfg.WriteRateLimit)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:5174"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_SOURCE", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://localhost/groupdecide")
	t.Setenv("SWEEP_INTERVAL", "45")
	t.Setenv("MAX_PARTICIPANTS", "12")
	t.Setenv("RESULTS_CACHE_TTL", "90m")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DataSourcePostgres, cfg.DataSource)
	assert.Equal(t, 45*time.Second, cfg.SweepInterval)
	assert.Equal(t, 12, cfg.MaxParticipants)
	assert.Equal(t, 90*time.Minute, cfg.ResultsCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{DataSource: DataSourceMemory, SweepInterval: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory needs nothing else", mutate: func(*Config) {}},
		{name: "postgres with url", mutate: func(c *Config) {
			c.DataSource = DataSourcePostgres
			c.DatabaseURL = "postgres://localhost/x"
		}},
		{name: "postgres without url", mutate: func(c *Config) { c.DataSource = DataSourcePostgres }, wantErr: "DATABASE_URL"},
		{name: "unknown source", mutate: func(c *Config) { c.DataSource = "sqlite" }, wantErr: "unknown DATA_SOURCE"},
		{name: "zero interval", mutate: func(c *Config) { c.SweepInterval = 0 }, wantErr: "SWEEP_INTERVAL"},
		{name: "negative rate limit", mutate: func(c *Config) { c.WriteRateLimit = -5 }, wantErr: "RATE_LIMIT_PER_MINUTE"},
		{name: "negative participants", mutate: func(c *Config) { c.MaxParticipants = -1 }, wantErr: "MAX_PARTICIPANTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
