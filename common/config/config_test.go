package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("share")
	require.NoError(t, err)

	assert.Equal(t, "share", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, "https://plc.directory", cfg.Identity.PLCDirectoryURL)
	assert.Equal(t, "https://cdn.bsky.app", cfg.Repo.BlobCDNURL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Identity.CacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PLC_DIRECTORY_URL", "http://plc.test/")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("IDENTITY_CACHE_TTL", "2m")
	t.Setenv("PREVIEW_RATE_LIMIT", "not-a-number")

	cfg, err := Load("share")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, "http://plc.test", cfg.Identity.PLCDirectoryURL, "trailing slash is trimmed")
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Identity.CacheTTL)
	assert.Equal(t, int64(30), cfg.RateLimit.Limit, "unparsable values fall back to defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Service.Port = 0 }},
		{"relative resolver url", func(c *Config) { c.Identity.HandleResolverURL = "/xrpc" }},
		{"ftp cdn", func(c *Config) { c.Repo.BlobCDNURL = "ftp://cdn" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"unknown limiter backend", func(c *Config) { c.RateLimit.Backend = "etcd" }},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"postgres cache without purge interval", func(c *Config) { c.Cache.Backend = "postgres"; c.Cache.PurgeInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("share")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTrustedProxyNets(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7 ,")

	cfg, err := Load("share")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.Service.TrustedProxies)

	nets, err := cfg.TrustedProxyNets()
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, "10.0.0.0/8", nets[0].String())
	assert.Equal(t, "192.0.2.7/32", nets[1].String())

	cfg.Service.TrustedProxies = []string{"not-a-proxy"}
	assert.Error(t, cfg.Validate())
}

func TestLoad_TracingDefaults(t *testing.T) {
	cfg, err := Load("share")
	require.NoError(t, err)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)

	cfg.Telemetry.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}
