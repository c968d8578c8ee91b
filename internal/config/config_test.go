package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "job_queue", cfg.Broker.Queue)
	require.Equal(t, time.Second, cfg.Broker.PopTimeout())
	require.Equal(t, time.Hour, cfg.Cache.CacheTTL())
	require.Equal(t, 5, cfg.Worker.Concurrency)
	require.Equal(t, 3, cfg.Worker.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.Worker.RunningStaleAfter())
	require.Equal(t, 2*time.Minute, cfg.Worker.PendingStaleAfter())
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, "noop", cfg.Events.Provider)
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"zero attempts", func(c *Config) { c.Worker.MaxAttempts = 0 }},
		{"empty queue", func(c *Config) { c.Broker.Queue = "" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }},
		{"local without dir", func(c *Config) { c.Storage.Provider = "local" }},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "tape" }},
		{"pubsub without topic", func(c *Config) { c.Events.Provider = "pubsub" }},
		{"unknown events", func(c *Config) { c.Events.Provider = "carrier-pigeon" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
