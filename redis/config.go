package redis

import "time"

// Defaults applied by normalize. The connection timeout is never allowed
// to stay zero: a zero deadline turns into "wait forever" on some
// platforms and into an instant failure on others.
const (
	defaultConnectionTimeout = 60 * time.Second
	defaultPoolSize          = 10
	defaultMinIdleConns      = 2
)

// Config describes the connection Connect resolves. Exactly one of URI
// and Params must be set; supplying both or neither is rejected.
type Config struct {
	// URI is a redis:// or rediss:// connection string.
	URI string

	// Params is the structured alternative to URI.
	Params *ConnectionParams

	// IsClusterConnection selects a cluster-aware client that discovers
	// topology from the configured endpoint.
	IsClusterConnection bool

	// ConnectionPooling shares one bounded client between all handles
	// resolved from an equivalent configuration. Without it the handle
	// owns a single direct connection.
	ConnectionPooling bool

	// SecureSocket enables TLS when non-nil.
	SecureSocket *SecureSocket
}

// ConnectionParams is the structured endpoint description.
type ConnectionParams struct {
	Host     string  `mapstructure:"host"`
	Port     int     `mapstructure:"port"`
	Username string  `mapstructure:"username"`
	Password string  `mapstructure:"password"`
	Options  Options `mapstructure:"options"`
}

// Options carries client tuning applied on top of the endpoint.
type Options struct {
	ClientName        string        `mapstructure:"clientName"`
	Database          int           `mapstructure:"database"`
	ConnectionTimeout time.Duration `mapstructure:"connectionTimeout"`
	PoolSize          int           `mapstructure:"poolSize"`
	MinIdleConns      int           `mapstructure:"minIdleConns"`
}

// normalize validates cfg and fills defaults, returning a copy that the
// rest of the package treats as immutable.
func normalize(cfg Config) (Config, error) {
	hasURI := cfg.URI != ""
	hasParams := cfg.Params != nil
	switch {
	case hasURI && hasParams:
		return Config{}, configErr("connection URI and connection parameters are mutually exclusive")
	case !hasURI && !hasParams:
		return Config{}, configErr("either a connection URI or connection parameters must be provided")
	}

	if hasParams {
		p := *cfg.Params
		if p.Host == "" {
			return Config{}, configErr("host must not be empty")
		}
		if p.Port <= 0 || p.Port > 65535 {
			return Config{}, configErr("port %d is outside the range 1-65535", p.Port)
		}
		if p.Options.Database < 0 {
			return Config{}, configErr("database index %d must not be negative", p.Options.Database)
		}
		if p.Options.Database != 0 && cfg.IsClusterConnection {
			return Config{}, configErr("database selection is not available on cluster deployments")
		}
		if p.Options.ConnectionTimeout < 0 {
			return Config{}, configErr("connection timeout must not be negative")
		}
		if p.Options.ConnectionTimeout == 0 {
			p.Options.ConnectionTimeout = defaultConnectionTimeout
		}
		if p.Options.PoolSize <= 0 {
			p.Options.PoolSize = defaultPoolSize
		}
		if p.Options.MinIdleConns <= 0 {
			p.Options.MinIdleConns = defaultMinIdleConns
		}
		cfg.Params = &p
	}

	return cfg, nil
}
