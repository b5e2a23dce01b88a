package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestError_Rendering(t *testing.T) {
	bare := configErr("host must not be empty")
	assert.Equal(t, "host must not be empty", bare.Error())

	cause := errors.New("dial tcp: connection refused")
	wrapped := connectionErr(cause, "failed to connect to Redis")
	assert.Equal(t, "failed to connect to Redis: dial tcp: connection refused", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := connectionErr(cause, "failed to connect to Redis")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{name: "config", err: configErr("bad"), want: IsConfigError},
		{name: "tls config", err: tlsConfigErr(nil, "bad"), want: IsTLSConfigError},
		{name: "connection", err: connectionErr(nil, "bad"), want: IsConnectionError},
		{name: "command", err: commandErr("GET", errors.New("bad")), want: IsCommandError},
		{name: "unsupported", err: unsupportedErr("CLUSTER", "bad"), want: IsUnsupportedError},
	}

	predicates := []func(error) bool{
		IsConfigError, IsTLSConfigError, IsConnectionError, IsCommandError, IsUnsupportedError,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched := 0
			for _, pred := range predicates {
				if pred(tt.err) {
					matched++
				}
			}
			assert.True(t, tt.want(tt.err))
			assert.Equal(t, 1, matched, "exactly one predicate should match")
		})
	}
}

func TestKindPredicates_WrappedChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", commandErr("SET", errors.New("oops")))
	assert.True(t, IsCommandError(err))
	assert.False(t, IsConfigError(err))
}

func TestCommandErr_CarriesOp(t *testing.T) {
	err := commandErr("HGETALL", errors.New("oops"))
	assert.Equal(t, "HGETALL", err.Op)
	assert.Contains(t, err.Error(), "HGETALL command failed")
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "noauth reply", err: errors.New("NOAUTH Authentication required."), want: true},
		{name: "wrongpass reply", err: errors.New("WRONGPASS invalid username-password pair"), want: true},
		{name: "legacy invalid password", err: errors.New("ERR invalid password"), want: true},
		{name: "handshake wrap", err: errors.New("failed to authenticate: EOF"), want: true},
		{name: "wrapped in connection error", err: connectionErr(errors.New("WRONGPASS invalid username-password pair"), "authentication with Redis failed"), want: true},
		{name: "refused dial", err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}

func TestIsTimeoutError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: connectionErr(context.DeadlineExceeded, "failed to connect to Redis"), want: true},
		{name: "net timeout", err: &fakeNetError{timeout: true}, want: true},
		{name: "net error without timeout", err: &fakeNetError{}, want: false},
		{name: "plain error", err: errors.New("oops"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTimeoutError(tt.err))
		})
	}
}
