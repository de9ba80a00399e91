// Package notifier delivers alert notifications. Delivery is best-effort: callers log
// failures and never retry.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Sink delivers one formatted message
type Sink interface {
	Send(ctx context.Context, subject, body string) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, subject, body string) error

func (f SinkFunc) Send(ctx context.Context, subject, body string) error {
	return f(ctx, subject, body)
}

// Multi fans a message out to several sinks. It fails only when every sink fails.
type Multi struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewMulti creates a fan-out sink
func NewMulti(logger zerolog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Send(ctx context.Context, subject, body string) error {
	if len(m.sinks) == 0 {
		return nil
	}
	var errs []error
	for i, s := range m.sinks {
		if err := s.Send(ctx, subject, body); err != nil {
			m.logger.Warn().Err(err).Int("sink", i).Str("subject", subject).Msg("Notification sink failed")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.sinks) {
		return fmt.Errorf("all %d notification sinks failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// LogSink writes notifications to the log only. Used when no transport is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log-only sink
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Send(_ context.Context, subject, body string) error {
	l.logger.Info().
		Str("subject", subject).
		Str("body", body).
		Msg("Would send notification (no transport configured)")
	return nil
}

// WithSubjectPrefix prepends prefix to every subject sent through s
func WithSubjectPrefix(s Sink, prefix string) Sink {
	if prefix == "" {
		return s
	}
	return SinkFunc(func(ctx context.Context, subject, body string) error {
		return s.Send(ctx, prefix+" "+subject, body)
	})
}
