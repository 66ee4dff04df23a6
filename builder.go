package goMFA

import (
	"errors"
	"time"

	"github.com/MrEthical07/goMFA/devicetoken"
	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/limiters"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it once during initialization;
// Build may be called a single time.
type Builder struct {
	config Config
	store  Store
	logger *zap.Logger
	now    func() time.Time

	users       UserDirectory
	sms         SMSSender
	email       EmailSender
	passwords   PasswordVerifier
	fingerprint FingerprintSource
	qr          QRRenderer
	sendLimit   SendLimiter
	auditSink   AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithUserDirectory sets the user lookup. Required.
func (b *Builder) WithUserDirectory(u UserDirectory) *Builder {
	b.users = u
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop().
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithSMSSender enables SMS setup and delivery.
func (b *Builder) WithSMSSender(s SMSSender) *Builder {
	b.sms = s
	return b
}

// WithEmailSender enables email setup and delivery.
func (b *Builder) WithEmailSender(s EmailSender) *Builder {
	b.email = s
	return b
}

// WithPasswordVerifier enables DisableMethod.
func (b *Builder) WithPasswordVerifier(p PasswordVerifier) *Builder {
	b.passwords = p
	return b
}

// WithFingerprintSource replaces RandomFingerprint.
func (b *Builder) WithFingerprintSource(f FingerprintSource) *Builder {
	b.fingerprint = f
	return b
}

// WithQRRenderer replaces the built-in PNG renderer.
func (b *Builder) WithQRRenderer(r QRRenderer) *Builder {
	b.qr = r
	return b
}

// WithSendLimiter throttles SMS and email code sends. See
// NewRedisSendLimiter.
func (b *Builder) WithSendLimiter(l SendLimiter) *Builder {
	b.sendLimit = l
	return b
}

// WithAuditSink sets the sink and turns auditing on.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithClock replaces time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.users == nil {
		return nil, errors.New("user directory required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:      cfg,
		store:       b.store,
		logger:      logger,
		now:         now,
		users:       b.users,
		sms:         b.sms,
		email:       b.email,
		passwords:   b.passwords,
		fingerprint: b.fingerprint,
		qr:          b.qr,
		sendLimit:   b.sendLimit,
	}
	if engine.fingerprint == nil {
		engine.fingerprint = RandomFingerprint{}
	}
	if engine.qr == nil {
		engine.qr = qrRenderer{size: cfg.TOTP.QRSize}
	}

	engine.totp = newTOTPManager(cfg.TOTP)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.lockout = limiters.NewLockoutPolicy(b.store.FailedAttempts(), limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	}, now, nil)

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		MaxBatch:   cfg.Audit.BatchSize,
		OnDrop: func(ev AuditEvent) {
			logger.Warn("audit event dropped",
				zap.String("event", ev.EventType),
				zap.String("user_id", ev.UserID),
			)
		},
	}, b.auditSink)

	if cfg.DeviceTrust.Enabled {
		tm, err := devicetoken.NewManager(devicetoken.Config{
			TTL:           cfg.DeviceTrust.TokenTTL,
			SigningMethod: devicetoken.SigningMethod(cfg.DeviceTrust.SigningMethod),
			PrivateKey:    cloneBytes(cfg.DeviceTrust.PrivateKey),
			PublicKey:     cloneBytes(cfg.DeviceTrust.PublicKey),
			Issuer:        cfg.DeviceTrust.Issuer,
			Now:           now,
		})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.tokens = tm
	}

	engine.deps = engine.buildDeps()

	b.built = true

	return engine, nil
}
