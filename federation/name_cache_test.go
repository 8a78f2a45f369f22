package federation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/datafed/internal/cache"
	"github.com/BaSui01/datafed/types"
)

func newTestNameCache(t *testing.T) *cache.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	m, err := cache.NewManager(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSearchIndicators_NameLookupsHitCacheSecondTime(t *testing.T) {
	base := &fakeClient{
		desc:  descOf("base", types.RoleBase),
		hits:  []types.SearchHit{{DCID: "Count_Person", Score: 0.9}},
		names: map[string]string{"Count_Person": "Person Count"},
	}
	mgr := newTestNameCache(t)
	r := newTestRouter(t, []*fakeClient{base}, WithNameCache(mgr, time.Minute))

	first, err := r.SearchIndicators(context.Background(), "population", 10)
	require.NoError(t, err)
	require.Len(t, first.Hits, 1)
	assert.Equal(t, "Person Count", first.Hits[0].Name)
	assert.Equal(t, 1, base.nameCalls)

	second, err := r.SearchIndicators(context.Background(), "population", 10)
	require.NoError(t, err)
	assert.Equal(t, "Person Count", second.Hits[0].Name)
	// The cached name means no second node API round trip.
	assert.Equal(t, 1, base.nameCalls)
}

func TestSearchIndicators_NoCacheAlwaysLooksUp(t *testing.T) {
	base := &fakeClient{
		desc:  descOf("base", types.RoleBase),
		hits:  []types.SearchHit{{DCID: "Count_Person", Score: 0.9}},
		names: map[string]string{"Count_Person": "Person Count"},
	}
	r := newTestRouter(t, []*fakeClient{base})

	for range 2 {
		_, err := r.SearchIndicators(context.Background(), "population", 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, base.nameCalls)
}
