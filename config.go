package sessionauth

import (
	"errors"
	"time"
)

// Config is the complete configuration for a [Manager]. Construct via
// [Builder.WithConfig]; signing keys and expiries are injected here and
// never read from ambient process state inside the token path.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Session  SessionConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// RevokeOnSecretChange clears the stored refresh token when
	// ChangeSecret succeeds, invalidating any outstanding session. Off by
	// default: a password change then leaves the current session intact.
	RevokeOnSecretChange bool

	// RehashOnLogin re-derives the stored digest after a successful login
	// when the hasher's parameters have been strengthened since the digest
	// was produced. The update is best-effort and never blocks the login.
	RehashOnLogin bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the two signing keys and both token lifetimes. The
// keys must differ: class separation is what keeps a leaked access key from
// minting refresh tokens.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis-backed session slot store built by
// [Builder.WithRedis]. Ignored when an explicit [SessionStore] is supplied.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Signing keys are left
// empty; callers must set both before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 10 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			RedisPrefix: "sa",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// cloneConfig deep-copies the key material so a caller mutating its Config
// after Build cannot affect the running Manager.
func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Token.AccessKey != nil {
		out.Token.AccessKey = append([]byte(nil), cfg.Token.AccessKey...)
	}
	if cfg.Token.RefreshKey != nil {
		out.Token.RefreshKey = append([]byte(nil), cfg.Token.RefreshKey...)
	}
	return out
}

func (c *Config) validate() error {
	if len(c.Token.AccessKey) == 0 || len(c.Token.RefreshKey) == 0 {
		return errors.New("config: access and refresh signing keys are required")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("config: audit buffer size must be >= 0")
	}
	return nil
}
