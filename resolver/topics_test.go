package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/datafed/internal/cache"
	"github.com/BaSui01/datafed/internal/metrics"
	"github.com/BaSui01/datafed/types"
)

// fakeSource serves a fixed topic graph and counts backend fetches.
type fakeSource struct {
	topics map[string]*types.Topic
	calls  int32
}

func (f *fakeSource) TopicMembers(_ context.Context, dcid string) (*types.Topic, error) {
	atomic.AddInt32(&f.calls, 1)
	t, ok := f.topics[dcid]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "no such topic")
	}
	return t, nil
}

func healthGraph() *fakeSource {
	return &fakeSource{topics: map[string]*types.Topic{
		"dc/topic/Health": {
			DCID:            "dc/topic/Health",
			Name:            "Health",
			MemberVariables: []string{"LifeExpectancy_Person", "Count_Death"},
			MemberTopics:    []string{"dc/topic/Mortality"},
		},
		"dc/topic/Mortality": {
			DCID:            "dc/topic/Mortality",
			Name:            "Mortality",
			MemberVariables: []string{"Count_Death", "MortalityRate_Person"},
		},
	}}
}

func TestStore_Variables_CuratedOrder(t *testing.T) {
	store := NewStore(healthGraph())

	vars, err := store.Variables(context.Background(), "dc/topic/Health")
	require.NoError(t, err)

	// Parent members first, then sub-topic members; the duplicate
	// Count_Death keeps its first position.
	assert.Equal(t, []string{"LifeExpectancy_Person", "Count_Death", "MortalityRate_Person"}, vars)
}

func TestStore_Variables_CycleSafe(t *testing.T) {
	src := &fakeSource{topics: map[string]*types.Topic{
		"dc/topic/A": {DCID: "dc/topic/A", MemberVariables: []string{"VarA"}, MemberTopics: []string{"dc/topic/B"}},
		"dc/topic/B": {DCID: "dc/topic/B", MemberVariables: []string{"VarB"}, MemberTopics: []string{"dc/topic/A"}},
	}}
	store := NewStore(src)

	vars, err := store.Variables(context.Background(), "dc/topic/A")
	require.NoError(t, err)
	assert.Equal(t, []string{"VarA", "VarB"}, vars)
}

func TestStore_Variables_DepthCap(t *testing.T) {
	// A chain deeper than the cap: only the reachable prefix contributes.
	src := &fakeSource{topics: map[string]*types.Topic{
		"dc/topic/L0": {DCID: "dc/topic/L0", MemberVariables: []string{"V0"}, MemberTopics: []string{"dc/topic/L1"}},
		"dc/topic/L1": {DCID: "dc/topic/L1", MemberVariables: []string{"V1"}, MemberTopics: []string{"dc/topic/L2"}},
		"dc/topic/L2": {DCID: "dc/topic/L2", MemberVariables: []string{"V2"}},
	}}
	store := NewStore(src, WithMaxDepth(1))

	vars, err := store.Variables(context.Background(), "dc/topic/L0")
	require.NoError(t, err)
	assert.Equal(t, []string{"V0", "V1"}, vars)
}

func TestStore_Variables_NotATopic(t *testing.T) {
	store := NewStore(healthGraph())
	_, err := store.Variables(context.Background(), "Count_Person")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestStore_Variables_EmptyTopic(t *testing.T) {
	src := &fakeSource{topics: map[string]*types.Topic{
		"dc/topic/Empty": {DCID: "dc/topic/Empty"},
	}}
	store := NewStore(src)

	_, err := store.Variables(context.Background(), "dc/topic/Empty")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_MemoizesFetches(t *testing.T) {
	src := healthGraph()
	store := NewStore(src)
	ctx := context.Background()

	_, err := store.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)
	_, err = store.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.True(t, store.Known("dc/topic/Health"))
	assert.False(t, store.Known("dc/topic/Mortality"))
}

func TestStore_CacheMetricsRecorded(t *testing.T) {
	collector := metrics.NewCollector("resolver_test_cache", zap.NewNop())
	store := NewStore(healthGraph(), WithMetrics(collector))
	ctx := context.Background()

	_, err := store.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)
	_, err = store.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)

	hits, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "resolver_test_cache_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	misses, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "resolver_test_cache_cache_misses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, misses)
}

func TestStore_Warm_LoadsRootTrees(t *testing.T) {
	src := healthGraph()
	store := NewStore(src, WithRootTopics([]string{"dc/topic/Health"}))

	require.NoError(t, store.Warm(context.Background()))

	// The whole tree is resolvable from memory afterwards.
	assert.True(t, store.Known("dc/topic/Health"))
	assert.True(t, store.Known("dc/topic/Mortality"))

	fetched := atomic.LoadInt32(&src.calls)
	_, err := store.Variables(context.Background(), "dc/topic/Health")
	require.NoError(t, err)
	assert.Equal(t, fetched, atomic.LoadInt32(&src.calls))
}

func TestStore_Warm_NoRootsIsNoop(t *testing.T) {
	src := healthGraph()
	store := NewStore(src)

	require.NoError(t, store.Warm(context.Background()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))
}

func TestStore_Warm_PartialFailureTolerated(t *testing.T) {
	src := healthGraph()
	store := NewStore(src, WithRootTopics([]string{"dc/topic/Missing", "dc/topic/Health"}))

	require.NoError(t, store.Warm(context.Background()))
	assert.True(t, store.Known("dc/topic/Health"))
}

func TestStore_Warm_AllRootsFailing(t *testing.T) {
	src := healthGraph()
	store := NewStore(src, WithRootTopics([]string{"dc/topic/Missing"}))

	assert.Error(t, store.Warm(context.Background()))
}

func TestStore_TopicCacheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topic_cache.json")
	content := `{
		"nodes": [
			{
				"dcid": ["dc/topic/Economy"],
				"name": ["Economy"],
				"typeOf": ["Topic"],
				"relevantVariableList": ["Amount_EconomicActivity_GrossDomesticProduction_Nominal", "dc/topic/Trade"]
			},
			{
				"dcid": ["dc/topic/Trade"],
				"name": ["Trade"],
				"typeOf": ["Topic"],
				"memberList": ["Amount_Export", "Amount_Import"]
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// No backend source: every topic must come from the file.
	store := NewStore(nil, WithTopicCacheFile(path), WithLogger(zap.NewNop()))

	vars, err := store.Variables(context.Background(), "dc/topic/Economy")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Amount_EconomicActivity_GrossDomesticProduction_Nominal",
		"Amount_Export",
		"Amount_Import",
	}, vars)
}

func TestStore_TopicCacheFileMissing(t *testing.T) {
	// A bad path is logged and ignored; lookups then fail cleanly.
	store := NewStore(nil, WithTopicCacheFile("/no/such/file.json"), WithLogger(zap.NewNop()))

	_, err := store.Topic(context.Background(), "dc/topic/Health")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_RedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer mgr.Close()

	src := healthGraph()
	store := NewStore(src, WithRedisCache(mgr, time.Minute))
	ctx := context.Background()

	_, err = store.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))

	// A fresh store sharing the same Redis resolves without the backend.
	src2 := &fakeSource{topics: map[string]*types.Topic{}}
	store2 := NewStore(src2, WithRedisCache(mgr, time.Minute))

	topic, err := store2.Topic(ctx, "dc/topic/Health")
	require.NoError(t, err)
	assert.Equal(t, "Health", topic.Name)
	assert.Zero(t, atomic.LoadInt32(&src2.calls))
}
