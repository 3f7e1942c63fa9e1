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

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/freiheit-com/servekit/pkg/config"
	"github.com/freiheit-com/servekit/pkg/grpc"
	"github.com/freiheit-com/servekit/pkg/logger"
	"github.com/freiheit-com/servekit/pkg/metrics"
	"github.com/freiheit-com/servekit/pkg/proxy"
	"github.com/freiheit-com/servekit/pkg/setup"
	"github.com/freiheit-com/servekit/pkg/tracing"
)

type Config struct {
	ConfigFile    string        `split_words:"true"`
	ProxyUpstream string        `default:"http://localhost:9000" split_words:"true"`
	ProxyEvery    uint64        `default:"2" split_words:"true"`
	ProxyTimeout  time.Duration `default:"5s" split_words:"true"`
	CorsOrigin    string        `split_words:"true"`
}

func RunServer() {
	var c Config
	err := logger.Wrap(context.Background(), func(ctx context.Context) error {
		err := envconfig.Process("demo", &c)
		if err != nil {
			logger.FromContext(ctx).Fatal("config.parse", zap.Error(err))
		}
		return runServer(ctx, c)
	})
	if err != nil {
		fmt.Printf("error: %v %#v", err, err)
	}
}

func runServer(ctx context.Context, c Config) error {
	var sources []config.Source
	if c.ConfigFile != "" {
		sources = append(sources, config.File(c.ConfigFile))
	}
	sources = append(sources, config.EnvPrefix("servekit"))
	appCfg, err := config.Load(ctx, sources...)
	if err != nil {
		return err
	}

	var shutdownTracing func(context.Context) error
	if appCfg.EnableTracing {
		tp, shutdown, err := tracing.Provider(ctx, tracing.ServiceName(appCfg.ServiceName), appCfg.TracesEndpoint)
		if err != nil {
			return err
		}
		shutdownTracing = shutdown
		ctx = tracing.WithTracerProvider(ctx, tp)
	}

	layer, err := newProxyLayer(ctx, c)
	if err != nil {
		return err
	}
	var rest http.Handler = layer.Wrap(Routes())
	if c.CorsOrigin != "" {
		rest = &setup.CORSMiddleware{
			PolicyFor: func(*http.Request) *setup.CORSPolicy {
				return &setup.CORSPolicy{
					AllowMethods:     "GET, POST",
					AllowHeaders:     "content-type,x-grpc-web,x-user-agent",
					AllowOrigin:      c.CorsOrigin,
					AllowCredentials: true,
					MaxAge:           0,
				}
			},
			NextHandler: rest,
		}
	}

	grpcServer := grpc.NewServer(ctx)
	grpc_health_v1.RegisterHealthServer(grpcServer, health.NewServer())
	reflection.Register(grpcServer)

	app := setup.NewFromConfig(appCfg, nil).
		RestRouter(rest).
		GrpcRouter(grpcServer).
		GrpcWeb()
	if shutdownTracing != nil {
		app.OnShutdown("tracer provider", shutdownTracing)
	}
	return app.Run(ctx)
}

// Routes is the REST router of the demo service.
func Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Hello world")
	})
	mux.HandleFunc("GET /hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Hello, "+r.PathValue("name"))
	})
	return mux
}

type proxyExtension struct {
	ctx     context.Context
	started time.Time
}

// newProxyLayer forwards every ProxyEvery-th request, starting with the first, to the upstream.
func newProxyLayer(ctx context.Context, c Config) (*proxy.Layer[proxyExtension], error) {
	if c.ProxyEvery == 0 {
		return nil, fmt.Errorf("proxy every must be at least 1")
	}
	var counter atomic.Uint64
	client := &http.Client{
		Timeout:   c.ProxyTimeout,
		Transport: tracing.WrapTransport(ctx, http.DefaultTransport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return proxy.NewLayer(proxy.Config[proxyExtension]{
		Client:   client,
		Upstream: c.ProxyUpstream,
		Extension: func(req *http.Request) proxyExtension {
			return proxyExtension{ctx: req.Context(), started: time.Now()}
		},
		ShouldProxy: func(*http.Request, proxyExtension) bool {
			return (counter.Add(1)-1)%c.ProxyEvery == 0
		},
		OnRequest: func(req *http.Request, ext proxyExtension) {
			req.Header.Set("X-Forwarded-By", "demo-service")
			logger.FromContext(ext.ctx).Info("proxy.request", zap.String("url", req.URL.String()))
		},
		OnResponse: func(resp *http.Response, ext proxyExtension) {
			record(ext, c.ProxyUpstream, strconv.Itoa(resp.StatusCode))
		},
		OnError: func(err *proxy.Error, ext proxyExtension) *http.Response {
			logger.FromContext(ext.ctx).Warn("proxy.upstream.error", zap.Error(err))
			record(ext, c.ProxyUpstream, err.Kind.String())
			return proxy.StatusResponse(http.StatusInternalServerError)
		},
	})
}

func record(ext proxyExtension, upstream, outcome string) {
	meter := metrics.FromContext(ext.ctx).Meter("demo-service")
	attrs := metric.WithAttributes(
		attribute.String(metrics.AttributeUpstream, upstream),
		attribute.String(metrics.AttributeOutcome, outcome),
	)
	if requests, err := meter.Int64Counter("proxy_requests"); err == nil {
		requests.Add(ext.ctx, 1, attrs)
	}
	if duration, err := meter.Float64Histogram("proxy_duration", metric.WithUnit("s")); err == nil {
		duration.Record(ext.ctx, time.Since(ext.started).Seconds(), attrs)
	}
}
