package sessionauth

import (
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sessionauth/sessionauth/password"
	"github.com/sessionauth/sessionauth/session"
	"github.com/sessionauth/sessionauth/token"
)

// Builder assembles a Manager from a Config and its dependencies.
// Builders are single-use: Build may only be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	principals   PrincipalStore
	sessionStore SessionStore
	auditSink    AuditSink

	built bool
}

// New returns a Builder seeded with the default config.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's config with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a redis client. Build constructs the refresh-slot
// store on top of it unless WithSessionStore overrides it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore supplies the principal backend. Required.
func (b *Builder) WithPrincipalStore(ps PrincipalStore) *Builder {
	b.principals = ps
	return b
}

// WithSessionStore supplies a refresh-slot store directly, bypassing
// the redis-backed default.
func (b *Builder) WithSessionStore(ss SessionStore) *Builder {
	b.sessionStore = ss
	return b
}

// WithAuditSink supplies the sink that receives audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the config, wires every component, and returns the
// Manager. The builder cannot be reused afterwards.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if b.principals == nil {
		return nil, errors.New("principal store required")
	}

	sessions := b.sessionStore
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store required")
		}
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Token.RefreshTTL)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessKey:  cloneBytes(cfg.Token.AccessKey),
		RefreshKey: cloneBytes(cfg.Token.RefreshKey),
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// Hash a throwaway plaintext under the configured parameters so the
	// unknown-identifier login path burns the same work as a real mismatch.
	dummyDigest, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:      cfg,
		issuer:      issuer,
		hasher:      hasher,
		principals:  b.principals,
		sessions:    sessions,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		dummyDigest: dummyDigest,
	}

	b.built = true

	return m, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
