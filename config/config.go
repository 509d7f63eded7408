package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.aldar.dev/ariagate/errors"
)

// Config holds all configuration for the gateway.
// Tags use mapstructure for Viper unmarshalling; every field is also
// bindable from the environment (dots replaced with underscores).
type Config struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Identity provider settings. Authority defaults to the v2.0
	// endpoint for the tenant when left empty.
	TenantID     string `mapstructure:"IDP_TENANT_ID"`
	Authority    string `mapstructure:"IDP_AUTHORITY"`
	ClientID     string `mapstructure:"IDP_CLIENT_ID"`
	ClientSecret string `mapstructure:"IDP_CLIENT_SECRET"`
	RedirectURI  string `mapstructure:"IDP_REDIRECT_URI"`

	// On-behalf-of target. TargetScope is the scope name under the
	// target application's api:// resource, not a full scope URI.
	TargetClientID string `mapstructure:"OBO_TARGET_CLIENT_ID"`
	TargetScope    string `mapstructure:"OBO_TARGET_SCOPE"`

	// Downstream API base URL used by the proxy routes.
	DownstreamBaseURL string `mapstructure:"DOWNSTREAM_BASE_URL"`

	// AllowedRedirectOrigins is the comma-separated list of origins the
	// login flow may send the browser back to after the callback.
	// Relative paths are always allowed; absolute URLs must match one of
	// these origins.
	AllowedRedirectOrigins string `mapstructure:"ALLOWED_REDIRECT_ORIGINS"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr may be empty; the state store then degrades to its
	// in-process fallback.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// RefreshTokenKey is the base64-encoded 32-byte key sealing refresh
	// tokens at rest.
	RefreshTokenKey string `mapstructure:"REFRESH_TOKEN_KEY"`

	// SessionSigningKey signs the middleware's own session JWTs.
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTLMin     int    `mapstructure:"SESSION_TTL_MIN"`

	// TokenCacheCapHours caps how long a delegated token may be cached
	// regardless of the provider-declared expiry.
	TokenCacheCapHours int `mapstructure:"TOKEN_CACHE_CAP_HOURS"`
	// StateTTLMin bounds how long a pending login state survives.
	StateTTLMin int `mapstructure:"STATE_TTL_MIN"`

	ProviderTimeoutSec   int `mapstructure:"PROVIDER_TIMEOUT_SEC"`
	DownstreamTimeoutSec int `mapstructure:"DOWNSTREAM_TIMEOUT_SEC"`
}

// Load reads configuration from file, environment variables and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/ariagate/")
	v.AddConfigPath("$HOME/.ariagate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default (even empty) so AutomaticEnv can surface
	// env-only values through Unmarshal.
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OBO_TARGET_SCOPE", "All")
	v.SetDefault("IDP_TENANT_ID", "")
	v.SetDefault("IDP_AUTHORITY", "")
	v.SetDefault("IDP_CLIENT_ID", "")
	v.SetDefault("IDP_CLIENT_SECRET", "")
	v.SetDefault("IDP_REDIRECT_URI", "")
	v.SetDefault("OBO_TARGET_CLIENT_ID", "")
	v.SetDefault("DOWNSTREAM_BASE_URL", "")
	v.SetDefault("ALLOWED_REDIRECT_ORIGINS", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REFRESH_TOKEN_KEY", "")
	v.SetDefault("SESSION_SIGNING_KEY", "")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/ariagate")
	v.SetDefault("MONGO_DB_NAME", "ariagate")
	v.SetDefault("SESSION_TTL_MIN", 60)
	v.SetDefault("TOKEN_CACHE_CAP_HOURS", 12)
	v.SetDefault("STATE_TTL_MIN", 10)
	v.SetDefault("PROVIDER_TIMEOUT_SEC", 15)
	v.SetDefault("DOWNSTREAM_TIMEOUT_SEC", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if cfg.Authority == "" && cfg.TenantID != "" {
		cfg.Authority = fmt.Sprintf("https://login.microsoftonline.com/%s", cfg.TenantID)
	}

	return &cfg, nil
}

// Validate checks the settings the delegation path cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.NewConfigError("IDP_CLIENT_ID is required")
	case c.ClientSecret == "":
		return errors.NewConfigError("IDP_CLIENT_SECRET is required")
	case c.Authority == "":
		return errors.NewConfigError("IDP_AUTHORITY or IDP_TENANT_ID is required")
	case c.TargetClientID == "":
		return errors.NewConfigError("OBO_TARGET_CLIENT_ID is required")
	}
	return nil
}

// LoginScopes is the scope set requested at login: the OIDC scopes plus
// this application's own resource scope. The same set is reused for
// refresh grants so rotated tokens keep the audience needed for OBO.
func (c *Config) LoginScopes() []string {
	return []string{"openid", "profile", "offline_access", c.ClientID + "/.default"}
}

// RedirectOrigins returns the parsed redirect origin allowlist, empty
// entries dropped.
func (c *Config) RedirectOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedRedirectOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return origins
}

// TargetScopeURI is the full downstream scope requested in the OBO grant.
func (c *Config) TargetScopeURI() string {
	return fmt.Sprintf("api://%s/%s", c.TargetClientID, c.TargetScope)
}

// ProviderTimeout returns the per-hop timeout for identity provider calls.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// DownstreamTimeout returns the per-hop timeout for downstream API calls.
func (c *Config) DownstreamTimeout() time.Duration {
	return time.Duration(c.DownstreamTimeoutSec) * time.Second
}

// StateTTL returns how long pending login states are kept.
func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMin) * time.Minute
}

// SessionTTL returns the lifetime of issued session tokens.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// TokenCacheCap returns the hard ceiling for delegated token cache TTLs.
func (c *Config) TokenCacheCap() time.Duration {
	return time.Duration(c.TokenCacheCapHours) * time.Hour
}
