package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.guard("PING"); err != nil {
		return err
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return dispatchErr("PING", err)
	}
	return nil
}

// Echo returns message round-tripped through the server.
func (c *Client) Echo(ctx context.Context, message string) (string, error) {
	if err := c.guard("ECHO"); err != nil {
		return "", err
	}
	val, err := c.rdb.Echo(ctx, message).Result()
	if err != nil {
		return "", dispatchErr("ECHO", err)
	}
	return val, nil
}

// Get retrieves the value of a key. The second return reports whether the
// key existed, keeping absent values distinct from failures.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.guard("GET"); err != nil {
		return "", false, err
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, dispatchErr("GET", err)
	}
	return val, true, nil
}

// Set stores a value under a key with an optional expiration. A zero
// expiration leaves the key without a TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.guard("SET"); err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, value, expiration).Err(); err != nil {
		return dispatchErr("SET", err)
	}
	return nil
}

// SetNX stores a value only when the key does not exist yet and reports
// whether it was written.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if err := c.guard("SETNX"); err != nil {
		return false, err
	}
	ok, err := c.rdb.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false, dispatchErr("SETNX", err)
	}
	return ok, nil
}

// Delete removes one or more keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := c.guard("DEL"); err != nil {
		return 0, err
	}
	deleted, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, dispatchErr("DEL", err)
	}
	return deleted, nil
}

// Exists checks if a key exists.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.guard("EXISTS"); err != nil {
		return false, err
	}
	count, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, dispatchErr("EXISTS", err)
	}
	return count > 0, nil
}

// Increment increases the value of a key by the given amount, creating
// the key at zero first when it does not exist.
func (c *Client) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	if err := c.guard("INCRBY"); err != nil {
		return 0, err
	}
	val, err := c.rdb.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, dispatchErr("INCRBY", err)
	}
	return val, nil
}

// IncrementFloat increases the value of a key by a float amount.
func (c *Client) IncrementFloat(ctx context.Context, key string, amount float64) (float64, error) {
	if err := c.guard("INCRBYFLOAT"); err != nil {
		return 0, err
	}
	val, err := c.rdb.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return 0, dispatchErr("INCRBYFLOAT", err)
	}
	return val, nil
}

// Decrement decreases the value of a key by the given amount.
func (c *Client) Decrement(ctx context.Context, key string, amount int64) (int64, error) {
	if err := c.guard("DECRBY"); err != nil {
		return 0, err
	}
	val, err := c.rdb.DecrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, dispatchErr("DECRBY", err)
	}
	return val, nil
}

// Expire sets an expiration on a key and reports whether the key exists.
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	if err := c.guard("EXPIRE"); err != nil {
		return false, err
	}
	ok, err := c.rdb.Expire(ctx, key, expiration).Result()
	if err != nil {
		return false, dispatchErr("EXPIRE", err)
	}
	return ok, nil
}

// TTL retrieves the remaining time-to-live for a key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := c.guard("TTL"); err != nil {
		return 0, err
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, dispatchErr("TTL", err)
	}
	return ttl, nil
}

// Keys retrieves all keys matching a pattern.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := c.guard("KEYS"); err != nil {
		return nil, err
	}
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, dispatchErr("KEYS", err)
	}
	return keys, nil
}

// LPush prepends values to a list and returns the new length.
func (c *Client) LPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	if err := c.guard("LPUSH"); err != nil {
		return 0, err
	}
	n, err := c.rdb.LPush(ctx, key, values...).Result()
	if err != nil {
		return 0, dispatchErr("LPUSH", err)
	}
	return n, nil
}

// LRange retrieves a range of list elements.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := c.guard("LRANGE"); err != nil {
		return nil, err
	}
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, dispatchErr("LRANGE", err)
	}
	return vals, nil
}

// HSet writes hash fields and returns how many were newly created.
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) (int64, error) {
	if err := c.guard("HSET"); err != nil {
		return 0, err
	}
	n, err := c.rdb.HSet(ctx, key, values...).Result()
	if err != nil {
		return 0, dispatchErr("HSET", err)
	}
	return n, nil
}

// HGetAll retrieves all fields and values of a hash.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := c.guard("HGETALL"); err != nil {
		return nil, err
	}
	values, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, dispatchErr("HGETALL", err)
	}
	return values, nil
}

// DBSize returns the number of keys in the selected database.
func (c *Client) DBSize(ctx context.Context) (int64, error) {
	if err := c.guard("DBSIZE"); err != nil {
		return 0, err
	}
	n, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return 0, dispatchErr("DBSIZE", err)
	}
	return n, nil
}

// FlushDB deletes all keys in the selected database.
func (c *Client) FlushDB(ctx context.Context) error {
	if err := c.guard("FLUSHDB"); err != nil {
		return err
	}
	if err := c.rdb.FlushDB(ctx).Err(); err != nil {
		return dispatchErr("FLUSHDB", err)
	}
	return nil
}

// ClusterInfo returns the cluster state block. Handles resolved without
// cluster mode cannot serve it.
func (c *Client) ClusterInfo(ctx context.Context) (string, error) {
	if err := c.guard("CLUSTER INFO"); err != nil {
		return "", err
	}
	if !c.IsCluster() {
		return "", unsupportedErr("CLUSTER INFO", "cannot execute CLUSTER: not a cluster connection")
	}
	info, err := c.rdb.ClusterInfo(ctx).Result()
	if err != nil {
		return "", dispatchErr("CLUSTER INFO", err)
	}
	return info, nil
}

// ClusterNodes returns the cluster topology description. Handles resolved
// without cluster mode cannot serve it.
func (c *Client) ClusterNodes(ctx context.Context) (string, error) {
	if err := c.guard("CLUSTER NODES"); err != nil {
		return "", err
	}
	if !c.IsCluster() {
		return "", unsupportedErr("CLUSTER NODES", "cannot execute CLUSTER: not a cluster connection")
	}
	nodes, err := c.rdb.ClusterNodes(ctx).Result()
	if err != nil {
		return "", dispatchErr("CLUSTER NODES", err)
	}
	return nodes, nil
}
