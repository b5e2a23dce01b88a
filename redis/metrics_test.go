package redis

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector(t *testing.T) {
	c := offlineClient(ModePooled)
	defer c.Close()

	collector := NewPoolStatsCollector(c, "shared")
	assert.Equal(t, 6, testutil.CollectAndCount(collector))

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(collector))

	families, err := registry.Gather()
	require.NoError(t, err)

	seen := make(map[string]bool, len(families))
	for _, mf := range families {
		seen[mf.GetName()] = true

		require.Len(t, mf.GetMetric(), 1)
		labels := mf.GetMetric()[0].GetLabel()
		require.Len(t, labels, 1)
		assert.Equal(t, "name", labels[0].GetName())
		assert.Equal(t, "shared", labels[0].GetValue())
	}
	for _, want := range []string{
		"redis_pool_hits",
		"redis_pool_misses",
		"redis_pool_timeouts",
		"redis_pool_conns",
		"redis_pool_idle_conns",
		"redis_pool_stale_conns",
	} {
		assert.True(t, seen[want], want)
	}
}
