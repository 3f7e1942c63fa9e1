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

package grpc_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	svgrpc "github.com/freiheit-com/servekit/pkg/grpc"
	"github.com/freiheit-com/servekit/pkg/logger"
	"github.com/freiheit-com/servekit/pkg/logger/testlogger"
)

type healthFunc struct {
	grpc_health_v1.UnimplementedHealthServer
	check func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error)
}

func (h *healthFunc) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return h.check(ctx)
}

func startServer(t *testing.T, ctx context.Context, h *healthFunc) grpc_health_v1.HealthClient {
	t.Helper()
	srv := svgrpc.NewServer(ctx)
	grpc_health_v1.RegisterHealthServer(srv, h)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = srv.Serve(l)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(l.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func TestNewServer(t *testing.T) {
	tcs := []struct {
		Name         string
		Check        func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error)
		ExpectedCode codes.Code
		ExpectedLogs []string
	}{
		{
			Name: "success",
			Check: func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
				return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
			},
			ExpectedCode: codes.OK,
		},
		{
			Name: "handler gets a logger",
			Check: func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
				logger.FromContext(ctx).Warn("handler.called")
				return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
			},
			ExpectedCode: codes.OK,
			ExpectedLogs: []string{"handler.called"},
		},
		{
			Name: "internal error",
			Check: func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
				return nil, svgrpc.InternalError(ctx, errors.New("database gone"))
			},
			ExpectedCode: codes.Internal,
			ExpectedLogs: []string{"grpc.internal"},
		},
		{
			Name: "panic",
			Check: func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
				panic("boom")
			},
			ExpectedCode: codes.Internal,
			ExpectedLogs: []string{"grpc.panic", "grpc.internal"},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			logs, ctx := testlogger.Start(t.Context())
			client := startServer(t, ctx, &healthFunc{check: tc.Check})

			_, err := client.Check(t.Context(), &grpc_health_v1.HealthCheckRequest{})
			if diff := cmp.Diff(tc.ExpectedCode, status.Code(err)); diff != "" {
				t.Errorf("code mismatch (-want, +got):\n%s", diff)
			}
			if tc.ExpectedCode == codes.Internal {
				if diff := cmp.Diff("internal error", status.Convert(err).Message()); diff != "" {
					t.Errorf("message mismatch (-want, +got):\n%s", diff)
				}
			}
			var messages []string
			for _, entry := range logs.All() {
				for _, expected := range tc.ExpectedLogs {
					if entry.Message == expected {
						messages = append(messages, entry.Message)
					}
				}
			}
			if diff := cmp.Diff(tc.ExpectedLogs, messages); diff != "" {
				t.Errorf("logs mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	ctx := context.Background()
	err := errors.New("no such thing")
	tcs := []struct {
		Name            string
		Err             error
		ExpectedCode    codes.Code
		ExpectedMessage string
	}{
		{Name: "public", Err: svgrpc.PublicError(ctx, err), ExpectedCode: codes.InvalidArgument, ExpectedMessage: "error: no such thing"},
		{Name: "canceled", Err: svgrpc.CanceledError(ctx, err), ExpectedCode: codes.Canceled, ExpectedMessage: "no such thing"},
		{Name: "precondition", Err: svgrpc.FailedPrecondition(ctx, err), ExpectedCode: codes.FailedPrecondition, ExpectedMessage: "error: no such thing"},
		{Name: "not found", Err: svgrpc.NotFoundError(ctx, err), ExpectedCode: codes.NotFound, ExpectedMessage: "error: no such thing"},
		{Name: "unavailable", Err: svgrpc.UnavailableError(ctx, err), ExpectedCode: codes.Unavailable, ExpectedMessage: "error: no such thing"},
		{Name: "internal", Err: svgrpc.InternalError(ctx, err), ExpectedCode: codes.Internal, ExpectedMessage: "internal error"},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			s := status.Convert(tc.Err)
			if diff := cmp.Diff(tc.ExpectedCode, s.Code()); diff != "" {
				t.Errorf("code mismatch (-want, +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.ExpectedMessage, s.Message()); diff != "" {
				t.Errorf("message mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}
