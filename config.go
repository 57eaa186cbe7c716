package gourdiansession

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// TokenType represents the type of token (access or refresh).
type TokenType string

const (
	AccessToken  TokenType = "access"  // Access token type
	RefreshToken TokenType = "refresh" // Refresh token type
)

const (
	// MinSecretLength is the minimum byte length of every configured secret.
	MinSecretLength = 32

	DefaultAccessTokenDuration  = 15 * time.Minute
	DefaultRefreshTokenDuration = 7 * 24 * time.Hour
	DefaultInactivityTimeout    = 8 * time.Hour
	DefaultTeamAccessCacheTTL   = 5 * time.Minute
	DefaultResolverTimeout      = 3 * time.Second
	DefaultResolverRetries      = 1
	DefaultResolverRetryDelay   = 100 * time.Millisecond
)

// GourdianSessionConfig holds the process-wide session configuration.
//
// Fields:
//   - AccessSecret: HMAC key for access tokens (min 32 bytes)
//   - RefreshSecret: HMAC key for refresh tokens (min 32 bytes, distinct from AccessSecret)
//   - EncryptionSecret: key material for the access-token payload cipher (min 32 bytes)
//   - AccessTokenDuration: access token lifetime
//   - RefreshTokenDuration: refresh token lifetime
//   - InactivityTimeout: maximum gap between lastActivity and now
//   - TeamAccessCacheTTL: lifetime of a cached team lookup
//   - ResolverTimeout: bound on a single resolver call
//   - ResolverRetries: retries after the first failed resolver call
//   - ResolverRetryDelay: pause between resolver attempts
//   - Issuer: optional "iss" claim, validated when set
//
// The config is loaded once and treated as immutable afterwards.
type GourdianSessionConfig struct {
	AccessSecret         string        `env:"ACCESS_SECRET,required"`
	RefreshSecret        string        `env:"REFRESH_SECRET,required"`
	EncryptionSecret     string        `env:"ENCRYPTION_SECRET,required"`
	AccessTokenDuration  time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTokenDuration time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
	InactivityTimeout    time.Duration `env:"INACTIVITY_TIMEOUT,default=8h"`
	TeamAccessCacheTTL   time.Duration `env:"TEAM_ACCESS_CACHE_TTL,default=5m"`
	ResolverTimeout      time.Duration `env:"RESOLVER_TIMEOUT,default=3s"`
	ResolverRetries      int           `env:"RESOLVER_RETRIES,default=1"`
	ResolverRetryDelay   time.Duration `env:"RESOLVER_RETRY_DELAY,default=100ms"`
	Issuer               string        `env:"ISSUER"`
}

// EnvPrefix is prepended to every variable read by LoadConfigFromEnv.
const EnvPrefix = "GOURDIAN_SESSION_"

// DefaultGourdianSessionConfig returns a config with the standard lifetimes and the given secrets.
func DefaultGourdianSessionConfig(accessSecret, refreshSecret, encryptionSecret string) GourdianSessionConfig {
	return GourdianSessionConfig{
		AccessSecret:         accessSecret,
		RefreshSecret:        refreshSecret,
		EncryptionSecret:     encryptionSecret,
		AccessTokenDuration:  DefaultAccessTokenDuration,
		RefreshTokenDuration: DefaultRefreshTokenDuration,
		InactivityTimeout:    DefaultInactivityTimeout,
		TeamAccessCacheTTL:   DefaultTeamAccessCacheTTL,
		ResolverTimeout:      DefaultResolverTimeout,
		ResolverRetries:      DefaultResolverRetries,
		ResolverRetryDelay:   DefaultResolverRetryDelay,
	}
}

// LoadConfigFromEnv reads GOURDIAN_SESSION_* variables, seeding the process environment from
// the given dotenv files first when they exist. A missing dotenv file is not an error.
//
// Required:
//   - GOURDIAN_SESSION_ACCESS_SECRET
//   - GOURDIAN_SESSION_REFRESH_SECRET
//   - GOURDIAN_SESSION_ENCRYPTION_SECRET
func LoadConfigFromEnv(ctx context.Context, dotenvFiles ...string) (GourdianSessionConfig, error) {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}
	return LoadConfig(ctx, envconfig.OsLookuper())
}

// LoadConfig reads the config through lookuper and validates it.
func LoadConfig(ctx context.Context, lookuper envconfig.Lookuper) (GourdianSessionConfig, error) {
	var cfg GourdianSessionConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	}); err != nil {
		return GourdianSessionConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validateConfig(&cfg); err != nil {
		return GourdianSessionConfig{}, err
	}
	return cfg, nil
}

// validateConfig validates the configuration.
func validateConfig(config *GourdianSessionConfig) error {
	secrets := []struct {
		name  string
		value string
	}{
		{"access secret", config.AccessSecret},
		{"refresh secret", config.RefreshSecret},
		{"encryption secret", config.EncryptionSecret},
	}
	for _, s := range secrets {
		if s.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, s.name)
		}
		if len(s.value) < MinSecretLength {
			return fmt.Errorf("%w: %s must be at least %d bytes", ErrInvalidConfig, s.name, MinSecretLength)
		}
	}

	// The three secrets must be pairwise distinct.
	if config.AccessSecret == config.RefreshSecret {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidConfig)
	}
	if config.EncryptionSecret == config.AccessSecret || config.EncryptionSecret == config.RefreshSecret {
		return fmt.Errorf("%w: encryption secret must differ from signing secrets", ErrInvalidConfig)
	}

	if config.AccessTokenDuration <= 0 {
		return fmt.Errorf("%w: access token duration must be positive", ErrInvalidConfig)
	}
	if config.RefreshTokenDuration <= 0 {
		return fmt.Errorf("%w: refresh token duration must be positive", ErrInvalidConfig)
	}
	if config.RefreshTokenDuration < config.AccessTokenDuration {
		return fmt.Errorf("%w: refresh token duration must not be shorter than access token duration", ErrInvalidConfig)
	}
	if config.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: inactivity timeout must be positive", ErrInvalidConfig)
	}
	if config.TeamAccessCacheTTL <= 0 {
		return fmt.Errorf("%w: team access cache ttl must be positive", ErrInvalidConfig)
	}
	if config.ResolverTimeout <= 0 {
		return fmt.Errorf("%w: resolver timeout must be positive", ErrInvalidConfig)
	}
	if config.ResolverRetries < 0 || config.ResolverRetries > 3 {
		return fmt.Errorf("%w: resolver retries must be between 0 and 3", ErrInvalidConfig)
	}
	if config.ResolverRetryDelay < 0 {
		return fmt.Errorf("%w: resolver retry delay must not be negative", ErrInvalidConfig)
	}
	return nil
}
