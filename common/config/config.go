package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Identity  IdentityConfig
	Repo      RepoConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Render    RenderConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	PublicURL   string // origin used when building share links

	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed. Empty
	// means the socket peer is the client.
	TrustedProxies []string
}

// IdentityConfig holds handle and DID resolution settings
type IdentityConfig struct {
	HandleResolverURL string
	PLCDirectoryURL   string
	CacheTTL          time.Duration
	// AllowPrivateHosts disables SSRF checks on PDS endpoints. Local development only.
	AllowPrivateHosts bool
}

// RepoConfig holds repository host access settings
type RepoConfig struct {
	BlobCDNURL  string
	HTTPTimeout time.Duration
	UserAgent   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled       bool
	Backend       string // "memory", "redis" or "postgres"
	DefaultTTL    time.Duration
	PurgeInterval time.Duration // postgres only: how often expired rows are deleted
}

// RenderConfig holds headless browser settings for previews and probing
type RenderConfig struct {
	ChromeBin  string
	ControlURL string // connect to an already running browser instead of launching
	Timeout    time.Duration
}

// RateLimitConfig holds preview endpoint throttling
type RateLimitConfig struct {
	Backend string // "local" or "redis"
	Limit   int64
	Window  time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof  bool
	PprofPort    int
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRate   float64
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:           serviceName,
			Port:           getEnvInt("PORT", 8080),
			Environment:    getEnv("ENVIRONMENT", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "text"),
			PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
			TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		},
		Identity: IdentityConfig{
			HandleResolverURL: strings.TrimRight(getEnv("HANDLE_RESOLVER_URL", "https://public.api.bsky.app"), "/"),
			PLCDirectoryURL:   strings.TrimRight(getEnv("PLC_DIRECTORY_URL", "https://plc.directory"), "/"),
			CacheTTL:          getEnvDuration("IDENTITY_CACHE_TTL", 15*time.Minute),
			AllowPrivateHosts: getEnvBool("ALLOW_PRIVATE_HOSTS", false),
		},
		Repo: RepoConfig{
			BlobCDNURL:  strings.TrimRight(getEnv("BLOB_CDN_URL", "https://cdn.bsky.app"), "/"),
			HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
			UserAgent:   getEnv("HTTP_USER_AGENT", "atmo-share/1.0"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "atmo"),
			User:        getEnv("POSTGRES_USER", "atmo"),
			Password:    getEnv("POSTGRES_PASSWORD", "atmo"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 10),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 1),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("CACHE_ENABLED", true),
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			PurgeInterval: getEnvDuration("CACHE_PURGE_INTERVAL", 10*time.Minute),
		},
		Render: RenderConfig{
			ChromeBin:  getEnv("CHROME_BIN", ""),
			ControlURL: getEnv("CHROME_CONTROL_URL", ""),
			Timeout:    getEnvDuration("RENDER_TIMEOUT", 20*time.Second),
		},
		RateLimit: RateLimitConfig{
			Backend: getEnv("RATE_LIMIT_BACKEND", "local"),
			Limit:   int64(getEnvInt("PREVIEW_RATE_LIMIT", 30)),
			Window:  getEnvDuration("PREVIEW_RATE_WINDOW", 1*time.Minute),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:  getEnvBool("ENABLE_PPROF", false),
			PprofPort:    getEnvInt("PPROF_PORT", 6060),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRate:   getEnvFloat("TRACE_SAMPLE_RATE", 1.0),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	for name, raw := range map[string]string{
		"HANDLE_RESOLVER_URL": c.Identity.HandleResolverURL,
		"PLC_DIRECTORY_URL":   c.Identity.PLCDirectoryURL,
		"BLOB_CDN_URL":        c.Repo.BlobCDNURL,
		"PUBLIC_URL":          c.Service.PublicURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}

	switch c.Cache.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	switch c.RateLimit.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown rate limit backend: %s", c.RateLimit.Backend)
	}

	if c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("preview rate limit must be positive")
	}

	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}

	if c.Cache.Backend == "postgres" && c.Cache.PurgeInterval <= 0 {
		return fmt.Errorf("cache purge interval must be positive")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("trace sample rate must be within [0, 1], got %v", c.Telemetry.SampleRate)
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// TrustedProxyNets parses TrustedProxies. Bare addresses are single hosts.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.Service.TrustedProxies))
	for _, raw := range c.Service.TrustedProxies {
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// RedisAddr returns host:port for the redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
