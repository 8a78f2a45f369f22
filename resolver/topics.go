// Package resolver expands curated topics into their member variables.
// Topic graphs come from a backend instance, optionally seeded from a
// local topic-cache file and memoized through Redis. Member order is
// curator-defined and preserved through every layer.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/datafed/internal/cache"
	"github.com/BaSui01/datafed/internal/metrics"
	"github.com/BaSui01/datafed/types"
)

// defaultMaxDepth caps topic recursion. Curated topic trees are shallow;
// anything deeper indicates a cycle or a malformed graph.
const defaultMaxDepth = 5

const redisKeyPrefix = "datafed:topic:"

// MemberSource fetches topic membership from a backend instance.
type MemberSource interface {
	TopicMembers(ctx context.Context, topicDCID string) (*types.Topic, error)
}

// Store resolves topics to their curated members. It is safe for
// concurrent use.
type Store struct {
	source   MemberSource
	redis    *cache.Manager
	redisTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector
	maxDepth int
	roots    []string

	mu     sync.RWMutex
	topics map[string]*types.Topic
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithRedisCache memoizes fetched topics in Redis so restarts and sibling
// processes skip the backend round trip.
func WithRedisCache(m *cache.Manager, ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.redis = m
		s.redisTTL = ttl
	}
}

// WithMaxDepth overrides the recursion cap for nested topics.
func WithMaxDepth(depth int) StoreOption {
	return func(s *Store) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithMetrics records topic cache hits and misses on the collector.
func WithMetrics(m *metrics.Collector) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithRootTopics names the curated root topics Warm traverses to pre-load
// the topic graph.
func WithRootTopics(roots []string) StoreOption {
	return func(s *Store) { s.roots = roots }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = logger.With(zap.String("component", "resolver")) }
}

// WithTopicCacheFile pre-seeds the store from a local topic-cache JSON
// file, avoiding backend calls for the topics it covers.
func WithTopicCacheFile(path string) StoreOption {
	return func(s *Store) {
		if path == "" {
			return
		}
		if err := s.loadCacheFile(path); err != nil {
			s.logger.Warn("topic cache file ignored",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// NewStore creates a topic store backed by the given member source.
func NewStore(source MemberSource, opts ...StoreOption) *Store {
	s := &Store{
		source:   source,
		logger:   zap.NewNop(),
		maxDepth: defaultMaxDepth,
		topics:   make(map[string]*types.Topic),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// topicCacheFile mirrors the on-disk topic cache layout: a list of nodes,
// each with single-element dcid/name wrappers and an ordered member list.
type topicCacheFile struct {
	Nodes []struct {
		DCID                 []string `json:"dcid"`
		Name                 []string `json:"name"`
		TypeOf               []string `json:"typeOf"`
		RelevantVariableList []string `json:"relevantVariableList"`
		MemberList           []string `json:"memberList"`
	} `json:"nodes"`
}

func (s *Store) loadCacheFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file topicCacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse topic cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := 0
	for _, n := range file.Nodes {
		if len(n.DCID) == 0 {
			continue
		}
		topic := &types.Topic{DCID: n.DCID[0]}
		if len(n.Name) > 0 {
			topic.Name = n.Name[0]
		}
		members := n.RelevantVariableList
		if len(members) == 0 {
			members = n.MemberList
		}
		for _, m := range members {
			if isTopic(m) {
				topic.MemberTopics = append(topic.MemberTopics, m)
			} else {
				topic.MemberVariables = append(topic.MemberVariables, m)
			}
		}
		s.topics[topic.DCID] = topic
		loaded++
	}

	s.logger.Info("topic cache file loaded",
		zap.String("path", path),
		zap.Int("topics", loaded),
	)
	return nil
}

// Topic returns the topic with its direct members, consulting memory,
// Redis, then the backend source.
func (s *Store) Topic(ctx context.Context, dcid string) (*types.Topic, error) {
	if !isTopic(dcid) {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("%s is not a topic", dcid))
	}

	s.mu.RLock()
	if t, ok := s.topics[dcid]; ok {
		s.mu.RUnlock()
		s.recordCache(true)
		return t, nil
	}
	s.mu.RUnlock()

	if s.redis != nil {
		var t types.Topic
		if err := s.redis.GetJSON(ctx, redisKeyPrefix+dcid, &t); err == nil {
			s.memoize(&t)
			s.recordCache(true)
			return &t, nil
		} else if !cache.IsCacheMiss(err) {
			s.logger.Warn("topic redis lookup failed", zap.Error(err))
		}
	}
	s.recordCache(false)

	if s.source == nil {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("topic %s not in cache and no backend source configured", dcid))
	}

	t, err := s.source.TopicMembers(ctx, dcid)
	if err != nil {
		return nil, err
	}
	s.memoize(t)

	if s.redis != nil {
		if err := s.redis.SetJSON(ctx, redisKeyPrefix+dcid, t, s.redisTTL); err != nil {
			s.logger.Warn("topic redis store failed", zap.Error(err))
		}
	}
	return t, nil
}

func (s *Store) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit("topics")
	} else {
		s.metrics.RecordCacheMiss("topics")
	}
}

// Warm traverses the configured root topics so the whole curated graph is
// resolvable from memory before the first query arrives. Roots that fail
// to load are logged and skipped; Warm only errors when every root fails.
func (s *Store) Warm(ctx context.Context) error {
	if len(s.roots) == 0 {
		return nil
	}

	start := time.Now()
	var failed int
	var lastErr error
	for _, root := range s.roots {
		if _, err := s.Variables(ctx, root); err != nil {
			s.logger.Warn("root topic warm failed",
				zap.String("topic", root),
				zap.Error(err),
			)
			failed++
			lastErr = err
		}
	}
	if failed == len(s.roots) {
		return fmt.Errorf("warm topics: all %d roots failed: %w", failed, lastErr)
	}

	s.mu.RLock()
	loaded := len(s.topics)
	s.mu.RUnlock()
	s.logger.Info("topic graph warmed",
		zap.Int("roots", len(s.roots)),
		zap.Int("topics", loaded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *Store) memoize(t *types.Topic) {
	s.mu.Lock()
	s.topics[t.DCID] = t
	s.mu.Unlock()
}

// Variables expands a topic to its member variables in curated order,
// descending into nested topics depth-first. Duplicates keep their first
// position.
func (s *Store) Variables(ctx context.Context, dcid string) ([]string, error) {
	seen := make(map[string]struct{})
	visited := make(map[string]struct{})
	var out []string

	var walk func(dcid string, depth int) error
	walk = func(dcid string, depth int) error {
		if depth > s.maxDepth {
			s.logger.Warn("topic recursion cap reached", zap.String("topic", dcid))
			return nil
		}
		if _, ok := visited[dcid]; ok {
			return nil
		}
		visited[dcid] = struct{}{}

		t, err := s.Topic(ctx, dcid)
		if err != nil {
			return err
		}
		for _, v := range t.MemberVariables {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
		for _, sub := range t.MemberTopics {
			if err := walk(sub, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(dcid, 0); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("topic %s has no member variables", dcid))
	}
	return out, nil
}

// Known reports whether the topic is already resolvable without a backend
// call.
func (s *Store) Known(dcid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[dcid]
	return ok
}

func isTopic(dcid string) bool {
	return strings.Contains(dcid, "/topic/")
}
