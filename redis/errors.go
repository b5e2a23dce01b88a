package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies every failure surfaced by this package.
type Kind string

const (
	KindConfig      Kind = "config"
	KindTLSConfig   Kind = "tls_config"
	KindConnection  Kind = "connection"
	KindCommand     Kind = "command"
	KindUnsupported Kind = "unsupported_operation"
)

// Error is the single error shape crossing the package boundary. Message
// carries the human-readable detail, Cause the native failure for
// errors.Is and errors.As.
type Error struct {
	Kind    Kind
	Op      string // command or lifecycle step, e.g. "GET" or "connect"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: cause, Message: fmt.Sprintf(format, args...)}
}

func configErr(format string, args ...interface{}) *Error {
	return newErr(KindConfig, nil, format, args...)
}

func tlsConfigErr(cause error, format string, args ...interface{}) *Error {
	return newErr(KindTLSConfig, cause, format, args...)
}

func connectionErr(cause error, format string, args ...interface{}) *Error {
	return newErr(KindConnection, cause, format, args...)
}

func commandErr(op string, cause error) *Error {
	e := newErr(KindCommand, cause, "%s command failed", op)
	e.Op = op
	return e
}

func unsupportedErr(op string, format string, args ...interface{}) *Error {
	e := newErr(KindUnsupported, nil, format, args...)
	e.Op = op
	return e
}

func hasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsConfigError reports whether err is a configuration validation failure.
func IsConfigError(err error) bool { return hasKind(err, KindConfig) }

// IsTLSConfigError reports whether err came from resolving TLS material.
func IsTLSConfigError(err error) bool { return hasKind(err, KindTLSConfig) }

// IsConnectionError reports whether err came from establishing or losing
// the server connection.
func IsConnectionError(err error) bool { return hasKind(err, KindConnection) }

// IsCommandError reports whether err is a command rejected by a live server.
func IsCommandError(err error) bool { return hasKind(err, KindCommand) }

// IsUnsupportedError reports whether err marks an operation the resolved
// topology cannot serve.
func IsUnsupportedError(err error) bool { return hasKind(err, KindUnsupported) }

// Server replies and handshake wrappings that mean the credentials were
// rejected rather than the endpoint being unreachable.
var authIndicators = []string{
	"NOAUTH",
	"WRONGPASS",
	"ERR invalid password",
	"failed to authenticate",
}

// IsAuthError reports whether the cause chain points at rejected
// credentials. Callers use this to separate non-retryable auth failures
// from retryable network ones.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, ind := range authIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// IsTimeoutError reports whether the cause chain is a deadline expiry or
// an I/O timeout.
func IsTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
