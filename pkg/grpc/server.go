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

// Package grpc builds gRPC servers with the logging, tracing and panic
// handling every servekit service uses.
package grpc

import (
	"context"
	"fmt"

	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/freiheit-com/servekit/pkg/logger"
	"github.com/freiheit-com/servekit/pkg/tracing"
)

// NewServer returns a server whose handlers get a request scoped logger in
// their context. A panicking handler returns codes.Internal instead of
// crashing the process. opts are applied after the defaults.
func NewServer(ctx context.Context, opts ...grpc.ServerOption) *grpc.Server {
	grpcServerLogger := logger.FromContext(ctx).Named("grpc_server")
	recoveryOpt := recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
		logger.FromContext(ctx).Error("grpc.panic", zap.Any("panic", p), zap.Stack("stack"))
		return InternalError(ctx, fmt.Errorf("panic: %v", p))
	})

	grpcStreamInterceptors := []grpc.StreamServerInterceptor{
		grpc_zap.StreamServerInterceptor(grpcServerLogger),
		recovery.StreamServerInterceptor(recoveryOpt),
	}
	grpcUnaryInterceptors := []grpc.UnaryServerInterceptor{
		grpc_zap.UnaryServerInterceptor(grpcServerLogger),
		recovery.UnaryServerInterceptor(recoveryOpt),
	}

	all := []grpc.ServerOption{
		grpc.ChainStreamInterceptor(grpcStreamInterceptors...),
		grpc.ChainUnaryInterceptor(grpcUnaryInterceptors...),
		tracing.OTELServerHandler(ctx),
	}
	return grpc.NewServer(append(all, opts...)...)
}
