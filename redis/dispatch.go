package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Commands only a cluster deployment can answer.
var clusterOnlyCommands = map[string]bool{
	"CLUSTER":   true,
	"READONLY":  true,
	"READWRITE": true,
}

// Commands tied to the multi-database model a cluster does not have.
var standaloneOnlyCommands = map[string]bool{
	"SELECT": true,
	"MOVE":   true,
	"SWAPDB": true,
}

// Execute dispatches a command by name against the resolved connection.
// Multi-word names like "CLUSTER INFO" are split into their protocol
// parts. Commands the resolved topology cannot serve are rejected before
// any network activity; a nil server reply becomes an absent Result, not
// an error. Execute never retries.
func (c *Client) Execute(ctx context.Context, name string, args ...interface{}) (*Result, error) {
	if err := c.guard(name); err != nil {
		return nil, err
	}

	fields := strings.Fields(name)
	if len(fields) == 0 {
		return nil, commandErr(name, errors.New("empty command name"))
	}
	verb := strings.ToUpper(fields[0])
	if !c.IsCluster() && clusterOnlyCommands[verb] {
		return nil, unsupportedErr(name, "cannot execute %s: not a cluster connection", verb)
	}
	if c.IsCluster() && standaloneOnlyCommands[verb] {
		return nil, unsupportedErr(name, "cannot execute %s on a cluster connection", verb)
	}

	cmdArgs := make([]interface{}, 0, len(fields)+len(args))
	for _, f := range fields {
		cmdArgs = append(cmdArgs, f)
	}
	cmdArgs = append(cmdArgs, args...)

	start := time.Now()
	val, err := c.rdb.Do(ctx, cmdArgs...).Result()
	c.observe(verb, start, err)

	if errors.Is(err, redis.Nil) {
		return &Result{absent: true}, nil
	}
	if err != nil {
		return nil, dispatchErr(name, err)
	}
	return &Result{val: val}, nil
}

func (c *Client) observe(verb string, start time.Time, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
	}
	c.metrics.CommandsExecuted.WithLabelValues(verb, status).Inc()
	c.metrics.CommandDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
}

// dispatchErr translates a native command failure, keeping connectivity
// problems apart from server-side command rejections.
func dispatchErr(op string, err error) error {
	if isConnectivityErr(err) {
		e := connectionErr(err, "%s failed: connection problem", op)
		e.Op = op
		return e
	}
	return commandErr(op, err)
}

func isConnectivityErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Result is one command reply. An absent reply (missing key, empty value)
// is reported by IsNil, never as an error.
type Result struct {
	val    interface{}
	absent bool
}

// IsNil reports whether the server answered with a nil reply.
func (r *Result) IsNil() bool { return r.absent }

// Value returns the raw reply.
func (r *Result) Value() interface{} { return r.val }

// Text returns the reply as a string.
func (r *Result) Text() (string, error) {
	switch v := r.val.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", replyTypeErr("string", r.val)
	}
}

// Int returns the reply as an integer.
func (r *Result) Int() (int64, error) {
	switch v := r.val.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, replyTypeErr("integer", r.val)
		}
		return n, nil
	default:
		return 0, replyTypeErr("integer", r.val)
	}
}

// Float returns the reply as a float.
func (r *Result) Float() (float64, error) {
	switch v := r.val.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, replyTypeErr("float", r.val)
		}
		return f, nil
	default:
		return 0, replyTypeErr("float", r.val)
	}
}

// Bool returns the reply as a boolean. Integer replies follow the Redis
// convention of zero meaning false, and a plain OK status counts as true.
func (r *Result) Bool() (bool, error) {
	switch v := r.val.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case string:
		if v == "OK" {
			return true, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, replyTypeErr("boolean", r.val)
		}
		return b, nil
	default:
		return false, replyTypeErr("boolean", r.val)
	}
}

// Strings returns the reply as a list of strings.
func (r *Result) Strings() ([]string, error) {
	items, ok := r.val.([]interface{})
	if !ok {
		return nil, replyTypeErr("array", r.val)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case nil:
			out = append(out, "")
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}

// Slice returns the reply as a raw array.
func (r *Result) Slice() ([]interface{}, error) {
	items, ok := r.val.([]interface{})
	if !ok {
		return nil, replyTypeErr("array", r.val)
	}
	return items, nil
}

func replyTypeErr(want string, got interface{}) *Error {
	return newErr(KindCommand, nil, "unexpected reply type %T, want %s", got, want)
}
