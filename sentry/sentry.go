// sentry/sentry.go
package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

var flushTimeout = 2 * time.Second

// SentryConfig mirrors the sentry client options this package forwards.
type SentryConfig struct {
	DSN                string  `mapstructure:"dsn"`
	Environment        string  `mapstructure:"environment"`
	Release            string  `mapstructure:"release"`
	Debug              bool    `mapstructure:"debug"`
	IsEnabled          bool    `mapstructure:"is_enabled"`
	TracesSampleRate   float64 `mapstructure:"traces_sample_rate"`
	ProfilesSampleRate float64 `mapstructure:"profiles_sample_rate"`
	EnableTracing      bool    `mapstructure:"enable_tracing"`
}

func Init(config SentryConfig) error {
	if !config.IsEnabled {
		log.Warn().Msg("Sentry is disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:                config.DSN,
		Environment:        config.Environment,
		Release:            config.Release,
		Debug:              config.Debug,
		TracesSampleRate:   config.TracesSampleRate,
		ProfilesSampleRate: config.ProfilesSampleRate,
		AttachStacktrace:   true,
		EnableTracing:      config.EnableTracing,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && hint.OriginalException != nil {
				log.Error().
					Err(hint.OriginalException).
					Str("sentry_event_id", string(event.EventID)).
					Msg("Sentry event captured")
			}
			return event
		},
	})

	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	return nil
}

func CaptureError(err error) string {
	if err == nil {
		return ""
	}
	eventID := sentry.CaptureException(err)
	Flush()
	if eventID == nil {
		return ""
	}
	return string(*eventID)
}

func CaptureMessage(message string) string {
	eventID := sentry.CaptureMessage(message)
	Flush()
	if eventID == nil {
		return ""
	}
	return string(*eventID)
}

func Flush() {
	sentry.Flush(flushTimeout)
}

func Close() {
	Flush()
}
