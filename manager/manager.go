// Package manager coordinates the named queues and sets stored in one
// cache: header create-or-fetch, the header change listener, the handle
// registries, the cluster-wide set removal protocol and the lifecycle
// guards.
//
// This package sits above every structure package (queue, set) and the
// collaborator contracts (cache, cluster), and below the application.
package manager

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/backoff"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/codec"
	"github.com/xraph/datastruct/ext"
	"github.com/xraph/datastruct/guard"
	"github.com/xraph/datastruct/header"
	mw "github.com/xraph/datastruct/middleware"
	"github.com/xraph/datastruct/observability"
	"github.com/xraph/datastruct/queue"
	"github.com/xraph/datastruct/registry"
	"github.com/xraph/datastruct/set"
	"github.com/xraph/datastruct/store"
)

// instrumentationName is the OTel scope of the manager.
const instrumentationName = "github.com/xraph/datastruct/manager"

// blockedSetTTL is how long a set id blocked by a removal broadcast is
// remembered. Ids are never reused, so this only has to outlive a lookup
// that read the header just before it was removed.
const blockedSetTTL = time.Minute

// Manager owns the structures of one cache on one node.
type Manager struct {
	cache    cache.Cache
	config   datastruct.Config
	logger   *slog.Logger
	cluster  cluster.Cluster
	provider cache.Provider
	codec    codec.Codec

	extensions *ext.Registry
	exts       []ext.Extension
	mws        []mw.Middleware
	chain      mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer

	retry   cache.RetryPolicy
	limiter *rate.Limiter

	init     *guard.Barrier
	gate guard.BusyLock // structure access
	busy guard.BusyLock // listener callbacks

	stopMu  sync.Mutex
	stopped bool

	queues registry.Registry[*queue.Proxy]
	sets   registry.Registry[*set.Set]

	// blockedSets holds ids of sets blocked on this node by a removal.
	blockedSets *gocache.Cache

	subscribed atomic.Bool
	subMu      sync.Mutex
	sub        cache.Subscription
}

// Option configures a Manager.
type Option func(*Manager) error

// WithConfig sets the manager configuration. Zero fields take defaults.
func WithConfig(cfg datastruct.Config) Option {
	return func(m *Manager) error {
		m.config = cfg.Normalize()
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) error {
		if l == nil {
			return errors.New("datastruct/manager: nil logger")
		}
		m.logger = l
		return nil
	}
}

// WithCluster enables cluster-wide removal. Without a cluster the manager
// runs in single-process mode.
func WithCluster(c cluster.Cluster) Option {
	return func(m *Manager) error {
		m.cluster = c
		return nil
	}
}

// WithCacheProvider sets the provider of dedicated caches for separated
// sets.
func WithCacheProvider(p cache.Provider) Option {
	return func(m *Manager) error {
		m.provider = p
		return nil
	}
}

// WithStore sets the backend serving this node's caches. It is used as
// the cache provider for separated sets.
func WithStore(s store.Store) Option {
	return func(m *Manager) error {
		if s == nil {
			return errors.New("datastruct/manager: nil store")
		}
		m.provider = s
		return nil
	}
}

// WithCodec sets the codec of remote call payloads. Defaults to msgpack.
func WithCodec(c codec.Codec) Option {
	return func(m *Manager) error {
		m.codec = c
		return nil
	}
}

// WithExtension registers an extension.
func WithExtension(e ext.Extension) Option {
	return func(m *Manager) error {
		m.exts = append(m.exts, e)
		return nil
	}
}

// WithMiddleware appends middleware to the chain wrapping remote calls
// this node executes.
func WithMiddleware(x mw.Middleware) Option {
	return func(m *Manager) error {
		m.mws = append(m.mws, x)
		return nil
	}
}

// WithTracerProvider sets the OTel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) error {
		m.tracerProvider = tp
		return nil
	}
}

// WithMeterProvider sets the OTel meter provider and records lifecycle and
// remote call metrics with it.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) error {
		m.meterProvider = mp
		return nil
	}
}

// New creates a manager for c. Call Start before use.
func New(c cache.Cache, opts ...Option) (*Manager, error) {
	if c == nil {
		return nil, errors.New("datastruct/manager: nil cache")
	}
	m := &Manager{
		cache:  c,
		config: datastruct.DefaultConfig(),
		logger: slog.Default(),
		codec:  codec.Default(),
		init:   guard.NewBarrier(),

		blockedSets: gocache.New(blockedSetTTL, blockedSetTTL),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.extensions = ext.NewRegistry(m.logger)

	tp := m.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	m.tracer = tp.Tracer(instrumentationName)

	chain := []mw.Middleware{
		mw.Recover(m.logger),
		mw.TracingWithTracer(m.tracer),
	}
	if m.meterProvider != nil {
		meter := m.meterProvider.Meter(instrumentationName)
		chain = append(chain, mw.MetricsWithMeter(meter))
		m.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	}
	for _, e := range m.exts {
		m.extensions.Register(e)
	}
	chain = append(chain, mw.Logging(m.logger), mw.Timeout(m.config.RemoteCallTimeout))
	m.chain = mw.Chain(append(chain, m.mws...)...)

	m.retry = cache.RetryPolicy{
		Attempts: m.config.RetryAttempts,
		Backoff:  backoff.NewExponentialWithJitter(m.config.RetryInitialDelay, m.config.RetryMaxDelay),
		Logger:   m.logger,
	}
	if m.config.PurgeRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(m.config.PurgeRate), 1)
	}
	return m, nil
}

// Config returns a copy of the manager configuration.
func (m *Manager) Config() datastruct.Config { return m.config }

// Logger returns the manager logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Cache returns the cache this manager serves.
func (m *Manager) Cache() cache.Cache { return m.cache }

// Extensions returns the extension registry.
func (m *Manager) Extensions() *ext.Registry { return m.extensions }

// KnownType reports whether v may be used as a set member.
func (m *Manager) KnownType(v any) bool {
	return header.KnownType(v)
}
