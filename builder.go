package keygate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/mehmetylmz/keygate/internal/rate"
	"github.com/mehmetylmz/keygate/internal/seal"
	"github.com/mehmetylmz/keygate/token"
)

// Builder wires an [Engine]. Construction is allocation-only; no I/O
// happens until engine methods are called.
type Builder struct {
	config Config
	redis  *redis.Client

	store      AccountStore
	settings   SettingsStore
	dispatcher Dispatcher
	auditSink  AuditSink

	built bool
}

// New returns a Builder carrying the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the durable account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithSettings sets the process-wide settings store. Required only when
// the dispatch-endpoint accessors are used.
func (b *Builder) WithSettings(settings SettingsStore) *Builder {
	b.settings = settings
	return b
}

// WithRedis sets the Redis client backing the attempt limiters. Required
// when Limits.Enabled is true.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithDispatcher sets the outbound messaging collaborator. Required only
// when Send is used.
func (b *Builder) WithDispatcher(d Dispatcher) *Builder {
	b.dispatcher = d
	return b
}

// WithAuditSink sets the audit sink; ignored unless Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTokenSecret sets the HMAC signing secret on the current config.
func (b *Builder) WithTokenSecret(secret []byte) *Builder {
	b.config.Token.Secret = cloneBytes(secret)
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and assembles the Engine. A Builder
// can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if cfg.Limits.Enabled && b.redis == nil {
		return nil, errors.New("attempt limiting requires redis client")
	}

	tokens, err := token.NewManager(token.Config{
		Secret:     cloneBytes(cfg.Token.Secret),
		SessionTTL: cfg.Token.SessionTTL,
		PendingTTL: cfg.Token.PendingTTL,
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		settings:   b.settings,
		dispatcher: b.dispatcher,
		tokens:     tokens,
		totp:       newTOTPManager(cfg.TOTP),
		quota:      newQuotaTracker(b.store, cfg.Quota),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics.Enabled),
	}

	if cfg.Limits.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxLoginAttempts: cfg.Limits.MaxLoginAttempts,
			LoginCooldown:    cfg.Limits.LoginCooldown,
			MaxCodeAttempts:  cfg.Limits.MaxCodeAttempts,
			CodeCooldown:     cfg.Limits.CodeCooldown,
		})
	}

	if len(cfg.TOTP.SealKey) > 0 {
		box, err := seal.New(cfg.TOTP.SealKey)
		if err != nil {
			return nil, err
		}
		engine.box = box
	}

	b.built = true

	return engine, nil
}
