package redis

import (
	"context"
	"crypto/tls"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/calvora/rediskit/logging"
)

// Mode identifies the connection strategy fixed at resolution time.
type Mode string

const (
	ModeStandalone    Mode = "standalone"
	ModePooled        Mode = "pooled"
	ModeCluster       Mode = "cluster"
	ModePooledCluster Mode = "pooled-cluster"
)

// Client is the resolved connection handle. The strategy is decided once
// by Connect and never re-decided; all dispatch goes through the one
// underlying client.
type Client struct {
	rdb     redis.UniversalClient
	mode    Mode
	key     poolKey
	reg     *clientRegistry // non-nil in pooled modes
	closed  atomic.Bool
	metrics *Metrics
}

// Connect normalizes cfg, resolves TLS material and builds the connection
// the topology flags select. The handle is verified with a PING bounded by
// the configured connection timeout before it is handed out.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	logger := logging.NewLogger()

	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := resolveTLS(cfg.SecureSocket)
	if err != nil {
		return nil, err
	}

	c := &Client{
		mode:    selectMode(cfg.IsClusterConnection, cfg.ConnectionPooling),
		metrics: NewMetrics(),
	}

	timeout := defaultConnectionTimeout
	if cfg.IsClusterConnection {
		opt, err := clusterOptions(cfg, tlsConfig)
		if err != nil {
			return nil, err
		}
		if opt.DialTimeout > 0 {
			timeout = opt.DialTimeout
		}
		if cfg.ConnectionPooling {
			c.reg = clusterPool
			c.key = clusterKey(opt, cfg.SecureSocket)
			c.rdb = clusterPool.checkout(c.key, func() redis.UniversalClient {
				return redis.NewClusterClient(opt)
			})
		} else {
			// One connection per node keeps command order strict.
			opt.PoolSize = 1
			opt.MinIdleConns = 0
			c.rdb = redis.NewClusterClient(opt)
		}
	} else {
		opt, err := standaloneOptions(cfg, tlsConfig)
		if err != nil {
			return nil, err
		}
		if opt.DialTimeout > 0 {
			timeout = opt.DialTimeout
		}
		if cfg.ConnectionPooling {
			c.reg = standalonePool
			c.key = standaloneKey(opt, cfg.SecureSocket)
			c.rdb = standalonePool.checkout(c.key, func() redis.UniversalClient {
				return redis.NewClient(opt)
			})
		} else {
			opt.PoolSize = 1
			opt.MinIdleConns = 0
			c.rdb = redis.NewClient(opt)
		}
	}

	pingCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		c.discard()
		if IsAuthError(err) {
			return nil, connectionErr(err, "authentication with Redis failed")
		}
		return nil, connectionErr(err, "failed to connect to Redis")
	}

	logger.Info().Str("mode", string(c.mode)).Msg("Connected to Redis")
	return c, nil
}

// discard releases a handle whose verification failed before it was ever
// handed out.
func (c *Client) discard() {
	c.closed.Store(true)
	if c.reg != nil {
		_ = c.reg.release(c.key, true)
		return
	}
	_ = c.rdb.Close()
}

// selectMode maps the two topology flags onto the connection strategy.
func selectMode(isCluster, pooling bool) Mode {
	switch {
	case isCluster && pooling:
		return ModePooledCluster
	case isCluster:
		return ModeCluster
	case pooling:
		return ModePooled
	default:
		return ModeStandalone
	}
}

// Mode reports the strategy the handle was resolved with.
func (c *Client) Mode() Mode { return c.mode }

// IsCluster reports whether the handle was resolved in cluster mode.
func (c *Client) IsCluster() bool {
	return c.mode == ModeCluster || c.mode == ModePooledCluster
}

// Metrics exposes the handle's command instrumentation for registration.
func (c *Client) Metrics() *Metrics { return c.metrics }

// PoolStats snapshots the underlying connection pool counters.
func (c *Client) PoolStats() *redis.PoolStats {
	return c.rdb.PoolStats()
}

// Close releases the handle. Pooled handles hand the shared client back to
// the registry, dedicated handles tear down their connection. A second
// Close is a no-op.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger := logging.NewLogger()
	logger.Debug().Str("mode", string(c.mode)).Msg("Closed Redis connection")
	if c.reg != nil {
		return c.reg.release(c.key, false)
	}
	return c.rdb.Close()
}

// guard rejects dispatch on a handle that has been closed.
func (c *Client) guard(op string) error {
	if c.closed.Load() {
		return &Error{Kind: KindConnection, Op: op, Message: "connection handle is closed"}
	}
	return nil
}

// standaloneOptions builds the single-node client options from either
// config form. Internal retries stay disabled: retry policy belongs to the
// caller.
func standaloneOptions(cfg Config, tlsConfig *tls.Config) (*redis.Options, error) {
	var opt *redis.Options
	if cfg.URI != "" {
		parsed, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, newErr(KindConfig, err, "invalid connection URI %q", cfg.URI)
		}
		opt = parsed
	} else {
		p := cfg.Params
		opt = &redis.Options{
			Addr:         net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
			Username:     p.Username,
			Password:     p.Password,
			DB:           p.Options.Database,
			ClientName:   p.Options.ClientName,
			DialTimeout:  p.Options.ConnectionTimeout,
			ReadTimeout:  p.Options.ConnectionTimeout,
			WriteTimeout: p.Options.ConnectionTimeout,
			PoolSize:     p.Options.PoolSize,
			MinIdleConns: p.Options.MinIdleConns,
		}
	}
	opt.MaxRetries = -1
	opt.ContextTimeoutEnabled = true
	if tlsConfig != nil {
		if tlsConfig.ServerName == "" {
			if prior := opt.TLSConfig; prior != nil && prior.ServerName != "" {
				tlsConfig.ServerName = prior.ServerName
			} else if host, _, err := net.SplitHostPort(opt.Addr); err == nil {
				tlsConfig.ServerName = host
			}
		}
		opt.TLSConfig = tlsConfig
	}
	return opt, nil
}

// clusterOptions builds the cluster client options from either config
// form. A URI may carry extra seed nodes via addr query parameters.
func clusterOptions(cfg Config, tlsConfig *tls.Config) (*redis.ClusterOptions, error) {
	var opt *redis.ClusterOptions
	if cfg.URI != "" {
		parsed, err := redis.ParseClusterURL(cfg.URI)
		if err != nil {
			return nil, newErr(KindConfig, err, "invalid cluster connection URI %q", cfg.URI)
		}
		opt = parsed
	} else {
		p := cfg.Params
		opt = &redis.ClusterOptions{
			Addrs:        []string{net.JoinHostPort(p.Host, strconv.Itoa(p.Port))},
			Username:     p.Username,
			Password:     p.Password,
			ClientName:   p.Options.ClientName,
			DialTimeout:  p.Options.ConnectionTimeout,
			ReadTimeout:  p.Options.ConnectionTimeout,
			WriteTimeout: p.Options.ConnectionTimeout,
			PoolSize:     p.Options.PoolSize,
			MinIdleConns: p.Options.MinIdleConns,
		}
	}
	opt.MaxRetries = -1
	opt.ContextTimeoutEnabled = true
	if tlsConfig != nil {
		if tlsConfig.ServerName == "" && len(opt.Addrs) > 0 {
			if prior := opt.TLSConfig; prior != nil && prior.ServerName != "" {
				tlsConfig.ServerName = prior.ServerName
			} else if host, _, err := net.SplitHostPort(opt.Addrs[0]); err == nil {
				tlsConfig.ServerName = host
			}
		}
		opt.TLSConfig = tlsConfig
	}
	return opt, nil
}

// tlsKeyPart derives the key's TLS component. TLS requested through a
// rediss:// URI carries no SecureSocket, so the effective client config
// stands in for the fingerprint.
func tlsKeyPart(ss *SecureSocket, tc *tls.Config) string {
	if fp := ss.fingerprint(); fp != "" {
		return fp
	}
	if tc == nil {
		return ""
	}
	return "uri|server=" + tc.ServerName + "|insecure=" + strconv.FormatBool(tc.InsecureSkipVerify)
}

func standaloneKey(opt *redis.Options, ss *SecureSocket) poolKey {
	return poolKey{
		addrs:      opt.Addr,
		username:   opt.Username,
		password:   opt.Password,
		db:         opt.DB,
		clientName: opt.ClientName,
		tls:        tlsKeyPart(ss, opt.TLSConfig),
	}
}

func clusterKey(opt *redis.ClusterOptions, ss *SecureSocket) poolKey {
	addrs := make([]string, len(opt.Addrs))
	copy(addrs, opt.Addrs)
	sort.Strings(addrs)
	return poolKey{
		addrs:      strings.Join(addrs, ","),
		username:   opt.Username,
		password:   opt.Password,
		clientName: opt.ClientName,
		tls:        tlsKeyPart(ss, opt.TLSConfig),
	}
}
