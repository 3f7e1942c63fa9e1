/*This file is part of servekit.

Servekit is free software: you can redistribute it and/or modify
it under the terms of the Expat(MIT) License as published by
the Free Software Foundation.

Servekit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
MIT License for more details.

You should have received a copy of the MIT License
along with servekit. If not, see <https://directory.fsf.org/wiki/License:Expat>.

Copyright freiheit.com*/

// Log implementation shared by every service built on servekit.
//
// The logger travels in the context. Use logger.FromContext(ctx) to get it;
// the returned logger carries the trace and span id of the active span.
package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/blendle/zapdriver"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func FromContext(ctx context.Context) *zap.Logger {
	l := ctxzap.Extract(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return ctxzap.ToContext(ctx, logger)
}

// New builds the process logger from LOG_FORMAT and LOG_LEVEL.
func New() (*zap.Logger, error) {
	format := os.Getenv("LOG_FORMAT")
	envLevel := os.Getenv("LOG_LEVEL")
	var level zapcore.Level = zapcore.WarnLevel
	if envLevel != "" {
		if err := level.Set(envLevel); err != nil {
			return nil, err
		}
	}
	options := []zap.Option{zap.IncreaseLevel(level)}
	switch format {
	case "gcp":
		return zapdriver.NewProduction(options...)
	case "", "default":
		return zap.NewProduction(options...)
	default:
		return nil, fmt.Errorf("unknown log_format: %s", format)
	}
}

func Wrap(ctx context.Context, inner func(ctx context.Context) error) (err error) {
	logger, err := New()
	if err != nil {
		return err
	}
	defer func() {
		syncErr := syncLogger(logger)
		if err == nil {
			err = syncErr
		}
	}()
	return inner(WithLogger(ctx, logger))
}

// syncLogger flushes l. Pipes and terminals cannot be synced, which is not an error.
func syncLogger(l *zap.Logger) error {
	err := l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
