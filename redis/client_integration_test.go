package redis

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, cmd ...string) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	if len(cmd) > 0 {
		req.Cmd = cmd
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Redis container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get Redis container port: %v", err)
	}

	return container, host + ":" + port.Port()
}

func setupTest(t *testing.T) (testcontainers.Container, string, *Client) {
	container, address := setupRedisContainer(t)

	client, err := Connect(context.Background(), Config{
		URI:               "redis://" + address,
		ConnectionPooling: true,
	})
	if err != nil {
		container.Terminate(context.Background())
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	return container, address, client
}

func teardownTest(container testcontainers.Container, client *Client) {
	if client != nil {
		client.Close()
	}
	container.Terminate(context.Background())
}

func TestRedisIntegration(t *testing.T) {
	container, address, client := setupTest(t)
	defer teardownTest(container, client)

	t.Run("Connect", func(t *testing.T) {
		assert.NotNil(t, client)
		assert.Equal(t, ModePooled, client.Mode())
		assert.False(t, client.IsCluster())
		assert.NoError(t, client.Ping(context.Background()))
		assert.NotNil(t, client.PoolStats())
	})

	t.Run("PoolMetrics", func(t *testing.T) {
		registry := prometheus.NewPedanticRegistry()
		require.NoError(t, registry.Register(NewPoolStatsCollector(client, "integration")))

		require.NoError(t, client.Ping(context.Background()))

		families, err := registry.Gather()
		require.NoError(t, err)

		var totalConns float64
		for _, mf := range families {
			if mf.GetName() == "redis_pool_conns" {
				require.Len(t, mf.GetMetric(), 1)
				totalConns = mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		assert.GreaterOrEqual(t, totalConns, 1.0)
	})

	t.Run("GetSet", func(t *testing.T) {
		ctx := context.Background()

		err := client.Set(ctx, "test_key", "test_value", 0)
		assert.NoError(t, err)

		got, found, err := client.Get(ctx, "test_key")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "test_value", got)
	})

	t.Run("GetAbsentKey", func(t *testing.T) {
		got, found, err := client.Get(context.Background(), "test_key_never_set")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, got)
	})

	t.Run("PooledHandlesShareState", func(t *testing.T) {
		ctx := context.Background()

		val, err := client.Increment(ctx, "test_key_counter", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)

		// A second pooled handle for the same endpoint reuses the shared
		// client instead of opening another one.
		before := standalonePool.size()
		second, err := Connect(ctx, Config{
			URI:               "redis://" + address,
			ConnectionPooling: true,
		})
		require.NoError(t, err)
		defer second.Close()
		assert.Equal(t, before, standalonePool.size())

		val, err = second.Increment(ctx, "test_key_counter", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), val)
	})

	t.Run("DedicatedHandleReadsItsWrites", func(t *testing.T) {
		ctx := context.Background()

		host, portStr, err := net.SplitHostPort(address)
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)

		dedicated, err := Connect(ctx, Config{
			Params: &ConnectionParams{Host: host, Port: port},
		})
		require.NoError(t, err)
		defer dedicated.Close()
		assert.Equal(t, ModeStandalone, dedicated.Mode())

		require.NoError(t, dedicated.Set(ctx, "test_key_dedicated", "yes", 0))
		got, found, err := dedicated.Get(ctx, "test_key_dedicated")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "yes", got)
	})

	t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		errs := make(chan error, workers*2)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := "test_key_worker_" + strconv.Itoa(i)
				if err := client.Set(ctx, key, strconv.Itoa(i), 0); err != nil {
					errs <- err
					return
				}
				got, _, err := client.Get(ctx, key)
				if err != nil {
					errs <- err
					return
				}
				if got != strconv.Itoa(i) {
					errs <- assert.AnError
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("Execute", func(t *testing.T) {
		ctx := context.Background()

		res, err := client.Execute(ctx, "SET", "test_key_exec", "42")
		require.NoError(t, err)
		ok, err := res.Bool()
		assert.NoError(t, err)
		assert.True(t, ok)

		res, err = client.Execute(ctx, "GET", "test_key_exec")
		require.NoError(t, err)
		text, err := res.Text()
		assert.NoError(t, err)
		assert.Equal(t, "42", text)

		res, err = client.Execute(ctx, "INCR", "test_key_exec")
		require.NoError(t, err)
		n, err := res.Int()
		assert.NoError(t, err)
		assert.Equal(t, int64(43), n)

		res, err = client.Execute(ctx, "GET", "test_key_exec_missing")
		require.NoError(t, err)
		assert.True(t, res.IsNil())

		_, err = client.Execute(ctx, "RPUSH", "test_key_exec_list", "a", "b")
		require.NoError(t, err)
		res, err = client.Execute(ctx, "LRANGE", "test_key_exec_list", 0, -1)
		require.NoError(t, err)
		items, err := res.Strings()
		assert.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, items)
	})

	t.Run("ExecuteServerRejection", func(t *testing.T) {
		_, err := client.Execute(context.Background(), "NOTACOMMAND")
		require.Error(t, err)
		assert.True(t, IsCommandError(err))
		assert.False(t, IsConnectionError(err))
	})

	t.Run("ClusterCommandsUnsupported", func(t *testing.T) {
		ctx := context.Background()

		_, err := client.ClusterInfo(ctx)
		require.Error(t, err)
		assert.True(t, IsUnsupportedError(err))

		_, err = client.ClusterNodes(ctx)
		require.Error(t, err)
		assert.True(t, IsUnsupportedError(err))

		_, err = client.Execute(ctx, "CLUSTER INFO")
		require.Error(t, err)
		assert.True(t, IsUnsupportedError(err))
	})

	t.Run("TypedHelpers", func(t *testing.T) {
		ctx := context.Background()

		echoed, err := client.Echo(ctx, "hello")
		assert.NoError(t, err)
		assert.Equal(t, "hello", echoed)

		written, err := client.SetNX(ctx, "test_key_nx", "first", 0)
		assert.NoError(t, err)
		assert.True(t, written)
		written, err = client.SetNX(ctx, "test_key_nx", "second", 0)
		assert.NoError(t, err)
		assert.False(t, written)

		exists, err := client.Exists(ctx, "test_key_nx")
		assert.NoError(t, err)
		assert.True(t, exists)

		deleted, err := client.Delete(ctx, "test_key_nx")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		require.NoError(t, client.Set(ctx, "test_key_ttl", "v", 0))
		ok, err := client.Expire(ctx, "test_key_ttl", 10*time.Second)
		assert.NoError(t, err)
		assert.True(t, ok)
		ttl, err := client.TTL(ctx, "test_key_ttl")
		assert.NoError(t, err)
		assert.True(t, ttl > 0)

		f, err := client.IncrementFloat(ctx, "test_key_float", 1.5)
		assert.NoError(t, err)
		assert.Equal(t, 1.5, f)

		val, err := client.Decrement(ctx, "test_key_decr", 2)
		assert.NoError(t, err)
		assert.Equal(t, int64(-2), val)

		n, err := client.LPush(ctx, "test_key_list", "b", "a")
		assert.NoError(t, err)
		assert.Equal(t, int64(2), n)
		items, err := client.LRange(ctx, "test_key_list", 0, -1)
		assert.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, items)

		created, err := client.HSet(ctx, "test_key_hash", "f1", "v1", "f2", "v2")
		assert.NoError(t, err)
		assert.Equal(t, int64(2), created)
		fields, err := client.HGetAll(ctx, "test_key_hash")
		assert.NoError(t, err)
		assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, fields)

		keys, err := client.Keys(ctx, "test_key_hash")
		assert.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("FlushDB", func(t *testing.T) {
		ctx := context.Background()

		size, err := client.DBSize(ctx)
		assert.NoError(t, err)
		assert.True(t, size > 0)

		require.NoError(t, client.FlushDB(ctx))
		size, err = client.DBSize(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), size)
	})

	t.Run("ClosedHandleFailsFast", func(t *testing.T) {
		ctx := context.Background()

		doomed, err := Connect(ctx, Config{URI: "redis://" + address})
		require.NoError(t, err)
		require.NoError(t, doomed.Close())
		require.NoError(t, doomed.Close(), "second close is a no-op")

		err = doomed.Set(ctx, "test_key_after_close", "v", 0)
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))

		_, err = doomed.Execute(ctx, "PING")
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
	})
}

// TestClusterIntegration needs a locally running cluster seed on the
// conventional port and skips otherwise; single-node containers cannot
// stand in for one because cluster nodes advertise their own addresses.
func TestClusterIntegration(t *testing.T) {
	ctx := context.Background()

	client, err := Connect(ctx, Config{
		URI:                 "redis://localhost:7000",
		IsClusterConnection: true,
	})
	if err != nil {
		t.Skip("Redis cluster not available, skipping test")
	}
	defer client.Close()

	t.Run("ClusterInfo", func(t *testing.T) {
		info, err := client.ClusterInfo(ctx)
		require.NoError(t, err)
		assert.Contains(t, info, "cluster_state")
	})

	t.Run("ClusterNodes", func(t *testing.T) {
		nodes, err := client.ClusterNodes(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, nodes)
	})

	t.Run("ExecuteClusterInfo", func(t *testing.T) {
		res, err := client.Execute(ctx, "CLUSTER INFO")
		require.NoError(t, err)
		text, err := res.Text()
		require.NoError(t, err)
		assert.Contains(t, text, "cluster_state")
	})

	t.Run("SelectRejected", func(t *testing.T) {
		_, err := client.Execute(ctx, "SELECT", 1)
		require.Error(t, err)
		assert.True(t, IsUnsupportedError(err))
	})

	t.Run("PooledClusterHandlesShare", func(t *testing.T) {
		pooled := Config{
			URI:                 "redis://localhost:7000",
			IsClusterConnection: true,
			ConnectionPooling:   true,
		}
		before := clusterPool.size()

		a, err := Connect(ctx, pooled)
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, ModePooledCluster, a.Mode())

		b, err := Connect(ctx, pooled)
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, before+1, clusterPool.size())
	})
}

func TestRedisIntegration_Auth(t *testing.T) {
	container, address := setupRedisContainer(t, "redis-server", "--requirepass", "secret")
	defer container.Terminate(context.Background())

	ctx := context.Background()

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := Connect(ctx, Config{URI: "redis://:wrong@" + address})
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
		assert.True(t, IsAuthError(err), "credential rejection must be recognizable: %v", err)
	})

	t.Run("MissingPassword", func(t *testing.T) {
		_, err := Connect(ctx, Config{URI: "redis://" + address})
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
		assert.True(t, IsAuthError(err), "got %v", err)
	})

	t.Run("CorrectPassword", func(t *testing.T) {
		client, err := Connect(ctx, Config{URI: "redis://:secret@" + address})
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(ctx))
	})
}
