package goSession

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/interceptor"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/schedule"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/wsauth"
)

// Builder assembles a [Manager]. A Builder is single-use.
type Builder struct {
	config Config

	redis      redis.UniversalClient
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink
	clock      schedule.Clock
	persister  session.Persister
	fs         afero.Fs

	built bool
}

// New returns a Builder starting from [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client used by the redis persistence backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient supplies the client whose transport carries every request. Its Timeout
// is ignored in favour of Config.HTTP.Timeout.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the wall clock used for renewal timers and auth timeouts.
func (b *Builder) WithClock(c schedule.Clock) *Builder {
	b.clock = c
	return b
}

// WithPersister overrides Config.Persistence with a caller-provided slot.
func (b *Builder) WithPersister(p session.Persister) *Builder {
	b.persister = p
	return b
}

// WithFs sets the filesystem of the file persistence backend. Defaults to the OS.
func (b *Builder) WithFs(fs afero.Fs) *Builder {
	b.fs = fs
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the manager. The returned manager owns
// background goroutines; release them with [Manager.Close].
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	persister, err := b.buildPersister(cfg)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("portal", string(cfg.Portal))

	clock := b.clock
	if clock == nil {
		clock = schedule.SystemClock{}
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		metrics: NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        clock.Now,
		}, b.auditSink),
		store: session.NewStore(persister),
	}

	m.scheduler = schedule.New(m.onRenewalDue, schedule.Options{
		Clock:              clock,
		LeadTime:           cfg.Schedule.LeadTime,
		MinDelay:           cfg.Schedule.MinDelay,
		ExpiringSoonWindow: cfg.Schedule.ExpiringSoonWindow,
		Logger:             logger,
		OnArmed:            func(time.Time) { m.metrics.Inc(MetricSchedulerArmed) },
		OnMalformed:        func(error) { m.metrics.Inc(MetricSchedulerMalformed) },
	})
	m.store.OnChange(m.scheduler.Observe)

	var base http.RoundTripper
	if b.httpClient != nil {
		base = b.httpClient.Transport
	}
	transport := &interceptor.Transport{
		Base:           base,
		Store:          m.store,
		Logger:         logger,
		OnRetry:        func() { m.metrics.Inc(MetricInterceptorRetry) },
		OnUnauthorized: m.onUnauthorized,
	}
	m.httpClient = interceptor.NewClient(transport, cfg.HTTP.Timeout)

	m.api, err = authapi.New(cfg.BaseURL, m.httpClient)
	if err != nil {
		return nil, err
	}

	m.executor = refresh.NewExecutor(m.store, m.api, refresh.Options{
		Logger:           logger,
		Now:              clock.Now,
		OnSuccess:        m.onRenewed,
		OnFailure:        m.onRenewalFailed,
		OnCoalesced:      func() { m.metrics.Inc(MetricRenewCoalesced) },
		OnNoRefreshToken: func() { m.metrics.Inc(MetricRenewNoRefreshToken) },
	})
	transport.Renewer = m.executor

	if cfg.WebSocket.Enabled {
		m.ws, err = wsauth.NewChannel(m.store, wsauth.Options{
			URL:           cfg.WebSocket.URL,
			HTTPClient:    b.httpClient,
			PortalType:    string(cfg.Portal),
			AuthTimeout:   cfg.WebSocket.AuthTimeout,
			DialAttempts:  cfg.WebSocket.DialAttempts,
			DialDelay:     cfg.WebSocket.DialDelay,
			DialTimeout:   cfg.WebSocket.DialTimeout,
			WriteTimeout:  cfg.WebSocket.WriteTimeout,
			Clock:         clock,
			Logger:        logger,
			OnAuthSuccess: m.onWSAuthenticated,
			OnAuthFailure: func(error) { m.metrics.Inc(MetricWSAuthFailure) },
			OnTimeout:     func() { m.metrics.Inc(MetricWSAuthTimeout) },
			OnCancelled:   func() { m.metrics.Inc(MetricWSAuthCancelled) },
		})
		if err != nil {
			m.scheduler.Close()
			m.audit.Close()
			return nil, err
		}
	}

	b.built = true
	return m, nil
}

func (b *Builder) buildPersister(cfg Config) (session.Persister, error) {
	if b.persister != nil {
		return b.persister, nil
	}

	switch cfg.Persistence.Backend {
	case PersistRedis:
		if b.redis == nil {
			return nil, ErrRedisRequired
		}
		return session.NewRedisPersister(b.redis, cfg.Persistence.RedisPrefix, cfg.Portal.Slot(), cfg.Persistence.RedisTTL)
	case PersistFile:
		fs := b.fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return session.NewFilePersister(fs, cfg.Persistence.FilePath, string(cfg.Portal))
	default:
		return session.NewMemoryPersister(), nil
	}
}
