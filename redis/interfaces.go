package redis

import "context"

// Conn is the capability surface of a resolved connection handle. The
// concrete strategy behind it is fixed at resolution time and never
// re-decided.
type Conn interface {
	Execute(ctx context.Context, name string, args ...interface{}) (*Result, error)
	IsCluster() bool
	Close() error
}

var _ Conn = (*Client)(nil)
