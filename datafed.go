// Package datafed provides a top-level convenience entry point for
// assembling the federated query service from configuration.
//
// Usage:
//
//	import "github.com/BaSui01/datafed"
//
//	cfg, err := config.NewLoader().WithConfigPath("datafed.yaml").Load()
//	svc, err := datafed.New(cfg, datafed.WithLogger(logger))
//	defer svc.Close()
//
//	hits, err := svc.Router.SearchIndicators(ctx, "life expectancy", 10)
//
// This is a thin wrapper around the instance, resolver, and federation
// packages; callers that need finer control can wire those directly.
package datafed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/datafed/config"
	"github.com/BaSui01/datafed/federation"
	"github.com/BaSui01/datafed/instance"
	"github.com/BaSui01/datafed/internal/cache"
	"github.com/BaSui01/datafed/internal/metrics"
	"github.com/BaSui01/datafed/internal/tlsutil"
	"github.com/BaSui01/datafed/resolver"
	"github.com/BaSui01/datafed/retry"
	"github.com/BaSui01/datafed/types"
)

// Service bundles the assembled federation stack. Create one with [New]
// and release its resources with [Service.Close].
type Service struct {
	Router  *federation.Router
	Topics  *resolver.Store
	Cache   *cache.Manager
	Metrics *metrics.Collector

	logger *zap.Logger
}

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics supplies an existing collector instead of registering a new
// one. Prometheus rejects duplicate registrations, so embedders that
// already created a collector must pass it here.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// New assembles the federation router and its supporting pieces from cfg.
// The returned service owns the Redis connection (when enabled) and must
// be closed when no longer needed.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrConfiguration, "nil configuration")
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	fedCfg, err := cfg.ToFederationConfig()
	if err != nil {
		return nil, err
	}

	collector := o.metrics
	if collector == nil {
		collector = metrics.NewCollector("datafed", logger)
	}

	svc := &Service{Metrics: collector, logger: logger}

	if cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.DefaultTTL = cfg.Redis.TTL
		mgr, err := cache.NewManager(cacheCfg, logger)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "redis cache unavailable").WithCause(err)
		}
		svc.Cache = mgr
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Client.MaxRetries

	httpClient := tlsutil.SecureHTTPClient(cfg.Client.RequestTimeout)

	clients := make([]federation.InstanceClient, 0, len(fedCfg.Instances))
	var topicSource resolver.MemberSource
	for _, desc := range fedCfg.Instances {
		c := instance.NewClient(desc,
			instance.WithHTTPClient(httpClient),
			instance.WithRetryPolicy(policy),
			instance.WithRateLimit(cfg.Client.RateLimitRPS, cfg.Client.RateLimitBurst),
			instance.WithLogger(logger),
			instance.WithMetrics(collector),
		)
		clients = append(clients, c)
		if topicSource == nil && desc.SupportsTopics {
			topicSource = c
		}
	}

	routerOpts := []federation.RouterOption{
		federation.WithRouterLogger(logger),
		federation.WithMetrics(collector),
	}
	if cfg.Federation.InstanceTimeout > 0 {
		routerOpts = append(routerOpts, federation.WithInstanceTimeout(cfg.Federation.InstanceTimeout))
	}
	if cfg.Federation.MaxSearchResults > 0 {
		routerOpts = append(routerOpts, federation.WithMaxSearchResults(cfg.Federation.MaxSearchResults))
	}
	if svc.Cache != nil {
		routerOpts = append(routerOpts, federation.WithNameCache(svc.Cache, cfg.Redis.TTL))
	}

	if topicSource != nil {
		storeOpts := []resolver.StoreOption{
			resolver.WithLogger(logger),
			resolver.WithMetrics(collector),
		}
		if len(cfg.Topics.RootTopics) > 0 {
			storeOpts = append(storeOpts, resolver.WithRootTopics(cfg.Topics.RootTopics))
		}
		if cfg.Topics.MaxDepth > 0 {
			storeOpts = append(storeOpts, resolver.WithMaxDepth(cfg.Topics.MaxDepth))
		}
		if cfg.Topics.CacheFile != "" {
			storeOpts = append(storeOpts, resolver.WithTopicCacheFile(cfg.Topics.CacheFile))
		}
		if svc.Cache != nil {
			storeOpts = append(storeOpts, resolver.WithRedisCache(svc.Cache, cfg.Redis.TTL))
		}
		svc.Topics = resolver.NewStore(topicSource, storeOpts...)
		routerOpts = append(routerOpts, federation.WithTopicStore(svc.Topics))
	}

	router, err := federation.NewRouter(fedCfg, clients, routerOpts...)
	if err != nil {
		if svc.Cache != nil {
			_ = svc.Cache.Close()
		}
		return nil, err
	}
	svc.Router = router
	return svc, nil
}

// WarmTopics pre-loads the configured root topic trees so first queries
// hit memory. It is a no-op when no topic-capable instance or no root
// topics are configured.
func (s *Service) WarmTopics(ctx context.Context) error {
	if s.Topics == nil {
		return nil
	}
	return s.Topics.Warm(ctx)
}

// Close releases the service's connections.
func (s *Service) Close() error {
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			return fmt.Errorf("close cache: %w", err)
		}
	}
	return nil
}
