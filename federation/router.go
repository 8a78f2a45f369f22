package federation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/datafed/internal/cache"
	"github.com/BaSui01/datafed/internal/metrics"
	"github.com/BaSui01/datafed/resolver"
	"github.com/BaSui01/datafed/types"
)

const (
	defaultInstanceTimeout = 10 * time.Second
	defaultMaxSearchHits   = 30
	maxSampleChildren      = 5
)

// InstanceClient is the per-instance surface the router fans out over.
// *instance.Client satisfies it; tests substitute fakes.
type InstanceClient interface {
	Descriptor() types.InstanceDescriptor
	SearchIndicators(ctx context.Context, query string, skipTopics bool, placeFilter []string) ([]types.SearchHit, error)
	Observations(ctx context.Context, variables, places []string, dates *types.DateRange) ([]types.Observation, error)
	ResolvePlaces(ctx context.Context, names []string) (map[string]types.Place, error)
	ChildPlaces(ctx context.Context, parentDCID, childType string) ([]types.Place, error)
	NodeNames(ctx context.Context, dcids []string) (map[string]string, error)
	HealthCheck(ctx context.Context) error
}

// Router is the federated query layer. It is safe for concurrent use; all
// mutable per-request state lives on the stack.
type Router struct {
	cfg     types.FederationConfig
	clients []InstanceClient
	topics  *resolver.Store
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	nameCache *cache.Manager
	nameTTL   time.Duration

	instanceTimeout time.Duration
	maxSearchHits   int
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithTopicStore enables topic expansion for search and observations.
func WithTopicStore(s *resolver.Store) RouterOption {
	return func(r *Router) { r.topics = s }
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = logger.With(zap.String("component", "federation")) }
}

// WithMetrics wires the Prometheus collector.
func WithMetrics(m *metrics.Collector) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithNameCache memoizes display-name lookups in Redis so repeated
// searches skip the node API round trip. Observation data is never
// cached; only names, which change essentially never.
func WithNameCache(m *cache.Manager, ttl time.Duration) RouterOption {
	return func(r *Router) {
		r.nameCache = m
		r.nameTTL = ttl
	}
}

// WithMaxSearchResults overrides the default cap on merged search hits.
// Callers can still request fewer per query.
func WithMaxSearchResults(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxSearchHits = n
		}
	}
}

// WithInstanceTimeout bounds each fan-out leg. A leg that misses the
// deadline is reported as degraded rather than failing the whole request.
func WithInstanceTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.instanceTimeout = d
		}
	}
}

// NewRouter builds a router over the given clients. Clients must be in
// the same order as cfg.Instances; the order is the merge tie-break.
func NewRouter(cfg types.FederationConfig, clients []InstanceClient, opts ...RouterOption) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(clients) != len(cfg.Instances) {
		return nil, types.NewError(types.ErrConfiguration, "client list does not match configured instances")
	}
	for i, c := range clients {
		if c.Descriptor().ID != cfg.Instances[i].ID {
			return nil, types.NewError(types.ErrConfiguration, "client order does not match configured instances")
		}
	}

	r := &Router{
		cfg:             cfg,
		clients:         clients,
		logger:          zap.NewNop(),
		tracer:          otel.Tracer("datafed/federation"),
		instanceTimeout: defaultInstanceTimeout,
		maxSearchHits:   defaultMaxSearchHits,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// startSpan opens a tracing span for one federated operation. The global
// provider is a noop unless telemetry is enabled, so this is free in the
// default configuration.
func (r *Router) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "federation."+operation,
		trace.WithAttributes(attribute.Int("federation.instances", len(r.clients))),
	)
}

func endSpan(span trace.Span, degraded []types.DegradedInstance, err error) {
	span.SetAttributes(attribute.Int("federation.degraded", len(degraded)))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Config returns the router's federation config.
func (r *Router) Config() types.FederationConfig {
	return r.cfg
}

// legResult pairs one instance's answer with its error, keeping the
// configuration index for deterministic merging.
type legResult[T any] struct {
	index int
	desc  types.InstanceDescriptor
	value T
	err   error
}

// fanOut runs call against every client concurrently with a per-leg
// timeout and collects all results. Slice order matches configuration
// order regardless of arrival order.
func fanOut[T any](ctx context.Context, r *Router, call func(ctx context.Context, c InstanceClient) (T, error)) []legResult[T] {
	results := make([]legResult[T], len(r.clients))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.clients {
		i, c := i, c
		g.Go(func() error {
			legCtx, cancel := context.WithTimeout(gctx, r.instanceTimeout)
			defer cancel()

			v, err := call(legCtx, c)
			results[i] = legResult[T]{index: i, desc: c.Descriptor(), value: v, err: err}
			// Never abort the group: every leg reports, failures become
			// degraded-instance advisories.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// collect splits fan-out results into successful legs and a degraded
// advisory, logging and counting each failure.
func collect[T any](r *Router, operation string, results []legResult[T]) (ok []legResult[T], degraded []types.DegradedInstance, reasons map[string]string) {
	reasons = make(map[string]string, len(results))
	for _, res := range results {
		if res.err != nil {
			reason := failureReason(res.err)
			reasons[res.desc.ID] = reason
			degraded = append(degraded, types.DegradedInstance{InstanceID: res.desc.ID, Reason: reason})

			r.logger.Warn("instance degraded",
				zap.String("operation", operation),
				zap.String("instance", res.desc.ID),
				zap.String("reason", reason),
			)
			if r.metrics != nil {
				r.metrics.RecordDegraded(operation, res.desc.ID)
			}
			continue
		}
		ok = append(ok, res)
	}
	return ok, degraded, reasons
}

// failureReason renders a short, credential-free reason for the advisory.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "unreachable"
}

// record finishes a federated operation's metrics.
func (r *Router) record(operation, status string, start time.Time, merged int) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordFederation(operation, status, time.Since(start), merged)
}

func statusOf(degraded []types.DegradedInstance) string {
	if len(degraded) > 0 {
		return "partial"
	}
	return "ok"
}

// HealthCheck pings every instance and reports per-instance errors.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) (struct{}, error) {
		return struct{}{}, c.HealthCheck(ctx)
	})

	out := make(map[string]error, len(results))
	for _, res := range results {
		out[res.desc.ID] = res.err
	}
	return out
}
