package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	transportStdio = "stdio"
	transportSSE   = "sse"

	cacheNone   = "none"
	cacheMemory = "memory"
	cacheRedis  = "redis"

	authOpaque    = "opaque"
	authJWTExpiry = "jwt-expiry"
	authJWKS      = "jwks"
	authOIDC      = "oidc"
)

// Config is decoded from the environment.
type Config struct {
	Port int `env:"APP_PORT,default=8080"`

	APIURL            string        `env:"SHIPPING_API_URL,default=https://apiv2.shiprocket.in"`
	ServiceabilityURL string        `env:"SHIPPING_SERVICEABILITY_URL,default=https://serviceability.shiprocket.in"`
	Timeout           time.Duration `env:"SHIPPING_TIMEOUT,default=15s"`

	// Bootstrap credential for the stdio transport.
	SellerToken    string `env:"SELLER_TOKEN"`
	SellerEmail    string `env:"SELLER_EMAIL"`
	SellerPassword string `env:"SELLER_PASSWORD"`

	CacheBackend  string        `env:"CACHE_BACKEND,default=memory"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=30s"`
	CacheMaxItems int           `env:"CACHE_MAX_ITEMS,default=10000"`
	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`

	AuthMode    string `env:"AUTH_MODE,default=opaque"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
	AuthIssuer  string `env:"AUTH_ISSUER"`
	// PublicURL is the externally visible base URL, used for the OAuth
	// protected resource metadata document.
	PublicURL string `env:"PUBLIC_URL"`

	// MaxPendingJobs caps queued requests per session; past it SSE posts get
	// 429 and stdio stops reading until the backlog drains.
	MaxPendingJobs int `env:"SESSION_MAX_PENDING,default=256"`

	KeepAlive      time.Duration `env:"SSE_KEEPALIVE,default=25s"`
	MetricsEnabled bool          `env:"METRICS_ENABLED,default=true"`

	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogHandler string `env:"LOG_HANDLER,default=json"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CacheBackend {
	case cacheNone, cacheMemory, cacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND: unknown backend %q", c.CacheBackend)
	}
	switch c.AuthMode {
	case authOpaque, authJWTExpiry:
	case authJWKS:
		if c.AuthJWKSURL == "" {
			return errors.New("AUTH_MODE=jwks requires AUTH_JWKS_URL")
		}
	case authOIDC:
		if c.AuthIssuer == "" {
			return errors.New("AUTH_MODE=oidc requires AUTH_ISSUER")
		}
	default:
		return fmt.Errorf("AUTH_MODE: unknown mode %q", c.AuthMode)
	}
	if c.CacheBackend == cacheMemory && c.CacheMaxItems <= 0 {
		return errors.New("CACHE_MAX_ITEMS must be positive")
	}
	return nil
}
