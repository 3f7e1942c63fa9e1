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

// Setup implementation shared between all services built on servekit.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/freiheit-com/servekit/pkg/config"
	serveerrors "github.com/freiheit-com/servekit/pkg/errors"
	"github.com/freiheit-com/servekit/pkg/logger"
	"github.com/freiheit-com/servekit/pkg/metrics"
	"github.com/freiheit-com/servekit/pkg/multiplexer"
	"github.com/freiheit-com/servekit/pkg/tracing"
)

const (
	primaryServer    = "primary"
	managementServer = "management"
)

var ErrAlreadyRun = errors.New("application has already been run")

// Replaced in tests.
var listen = func(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

type BackgroundFunc func(context.Context, *HealthReporter) error

type backgroundTask struct {
	name string
	run  BackgroundFunc
}

type shutdownHook struct {
	name string
	fn   func(context.Context) error
}

// Application serves a REST router, and optionally a gRPC server, on the
// primary socket and the management endpoints on a second socket.
//
// Setters can be chained and later calls overwrite earlier ones. An
// Application can be run once.
type Application struct {
	health          HealthIndicator
	host            string
	port            uint16
	managementPort  uint16
	restRouter      http.Handler
	grpcRouter      *grpc.Server
	grpcWeb         bool
	grpcWebOpts     []grpcweb.Option
	endpoints       config.Endpoints
	version         VersionInfo
	basicAuth       *BasicAuth
	shutdownTimeout time.Duration
	background      []backgroundTask
	shutdown        []shutdownHook
	healthServer    *HealthServer
	defaultTracing  bool
	onListen        func(server string, addr net.Addr)

	consumed atomic.Bool
}

// NewApplication returns an application with the default sockets
// 0.0.0.0:8000 and 0.0.0.0:8001. A nil health indicator is always ready and
// alive.
func NewApplication(health HealthIndicator) *Application {
	if health == nil {
		health = AlwaysReadyAndAlive
	}
	//exhaustruct:ignore
	return &Application{
		health:          health,
		host:            config.DefaultHost,
		port:            config.DefaultPort,
		managementPort:  config.DefaultManagementPort,
		endpoints:       config.DefaultEndpoints(),
		version:         VersionInfo{Name: "default", Component: "default", Version: "default"},
		shutdownTimeout: config.DefaultShutdownTimeout,
		healthServer:    &HealthServer{},
		defaultTracing:  true,
	}
}

func NewFromConfig(cfg *config.AppConfig, health HealthIndicator) *Application {
	return NewApplication(health).
		Host(cfg.Host).
		Port(cfg.Port).
		ManagementPort(cfg.ManagementPort).
		Endpoints(cfg.Management.Endpoints).
		ShutdownTimeout(cfg.ShutdownTimeout.Std()).
		Version(VersionInfo{
			Name:      cfg.ServiceName,
			Component: cfg.ComponentName,
			Version:   cfg.Version,
		})
}

func (a *Application) Host(host string) *Application {
	a.host = host
	return a
}

// Port sets the primary port. 0 binds a random free port.
func (a *Application) Port(port uint16) *Application {
	a.port = port
	return a
}

func (a *Application) ManagementPort(port uint16) *Application {
	a.managementPort = port
	return a
}

func (a *Application) RestRouter(router http.Handler) *Application {
	a.restRouter = router
	return a
}

// GrpcRouter makes the primary socket route requests with the content type
// application/grpc to srv.
func (a *Application) GrpcRouter(srv *grpc.Server) *Application {
	a.grpcRouter = srv
	return a
}

// GrpcWeb additionally routes gRPC-Web requests to the gRPC router.
func (a *Application) GrpcWeb(opts ...grpcweb.Option) *Application {
	a.grpcWeb = true
	a.grpcWebOpts = opts
	return a
}

func (a *Application) Endpoints(endpoints config.Endpoints) *Application {
	a.endpoints = endpoints
	return a
}

func (a *Application) Version(info VersionInfo) *Application {
	a.version = info
	return a
}

func (a *Application) ManagementBasicAuth(auth *BasicAuth) *Application {
	a.basicAuth = auth
	return a
}

// ShutdownTimeout limits how long the primary socket drains in-flight
// requests after the shutdown signal.
func (a *Application) ShutdownTimeout(timeout time.Duration) *Application {
	a.shutdownTimeout = timeout
	return a
}

// Background registers a task that runs next to the servers. Its context is
// cancelled once the primary socket has shut down. An error fails the run.
func (a *Application) Background(name string, fn BackgroundFunc) *Application {
	a.background = append(a.background, backgroundTask{name: name, run: fn})
	return a
}

// OnShutdown registers a cleanup callback, e.g. flushing a tracer provider.
// Callbacks run in reverse order of registration once the servers and
// background tasks have stopped, sharing one deadline of the shutdown timeout.
// Their errors are logged.
func (a *Application) OnShutdown(name string, fn func(context.Context) error) *Application {
	a.shutdown = append(a.shutdown, shutdownHook{name: name, fn: fn})
	return a
}

// DefaultTracingLayer controls whether the REST router is wrapped in an
// otelhttp handler. Disable it when the router brings its own tracing.
func (a *Application) DefaultTracingLayer(enabled bool) *Application {
	a.defaultTracing = enabled
	return a
}

// OnListen is called once per socket with the bound address.
func (a *Application) OnListen(fn func(server string, addr net.Addr)) *Application {
	a.onListen = fn
	return a
}

// Run serves both sockets until the process receives SIGINT or SIGTERM, ctx
// is done, or one of the sockets fails. The primary socket drains in-flight
// requests, the management socket is closed right after, then the
// OnShutdown callbacks run. The first error of any socket or background task
// is returned.
func (a *Application) Run(ctx context.Context) error {
	if !a.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	pv, metricsHandler, err := metrics.Init()
	if err != nil {
		return fmt.Errorf("metrics.init: %w", err)
	}
	ctx = metrics.WithProvider(ctx, pv)
	if err := a.registerMetrics(pv); err != nil {
		return fmt.Errorf("metrics.register: %w", err)
	}

	signalCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	shutdown, err := ShutdownSignal(signalCtx)
	if err != nil {
		return err
	}

	// request contexts keep the values of ctx but not its cancellation
	baseCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(baseCtx)
	primaryDone := make(chan struct{})
	tasksCtx, cancelTasks := context.WithCancel(gctx)
	defer cancelTasks()

	g.Go(func() error {
		defer cancelTasks()
		defer close(primaryDone)
		return a.servePrimary(gctx, baseCtx, shutdown)
	})
	management := newManagementHandler(baseCtx, managementConfig{
		endpoints:  a.endpoints,
		indicator:  a.health,
		background: a.healthServer,
		metrics:    metricsHandler,
		version:    a.version,
		basicAuth:  a.basicAuth,
	})
	g.Go(func() error {
		return a.serveManagement(gctx, baseCtx, primaryDone, management)
	})
	for _, task := range a.background {
		reporter := a.healthServer.Reporter(task.name)
		g.Go(func() error {
			if err := task.run(tasksCtx, reporter); err != nil {
				logger.FromContext(ctx).Error("background.error", zap.Error(err), zap.String("job", task.name))
				return fmt.Errorf("background task %s: %w", task.name, err)
			}
			return nil
		})
	}
	err = g.Wait()
	a.runShutdownHooks(baseCtx)
	return err
}

func (a *Application) runShutdownHooks(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		hook := a.shutdown[i]
		if err := hook.fn(ctx); err != nil {
			logger.FromContext(ctx).Error("shutdown.failed", zap.Error(err), zap.String("handler", hook.name))
		}
	}
}

func (a *Application) registerMetrics(pv metric.MeterProvider) error {
	_, err := pv.Meter("setup").Int64ObservableGauge("background_job_ready", metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
		now := a.healthServer.now()
		for name, report := range a.healthServer.reports() {
			var value int64
			if report.isReady(now) {
				value = 1
			}
			o.Observe(value, metric.WithAttributes(attribute.String("name", name)))
		}
		return nil
	}))
	return err
}

func (a *Application) addr(port uint16) string {
	return net.JoinHostPort(a.host, strconv.Itoa(int(port)))
}

func (a *Application) primaryHandler(ctx context.Context) (http.Handler, string) {
	rest := a.restRouter
	if rest == nil {
		rest = http.NotFoundHandler()
	}
	rest = logger.WithHttpLogger(logger.FromContext(ctx), rest)
	if a.defaultTracing {
		rest = tracing.WrapHttp(ctx, rest, "rest")
	}
	if a.grpcRouter == nil {
		return rest, "rest"
	}
	var opts []multiplexer.Option
	if a.grpcWeb {
		opts = append(opts, multiplexer.WithGrpcWeb(a.grpcRouter, a.grpcWebOpts...))
	}
	return multiplexer.New(rest, a.grpcRouter, opts...), "rest + grpc"
}

func (a *Application) servePrimary(gctx, baseCtx context.Context, shutdown <-chan struct{}) error {
	log := logger.FromContext(baseCtx)
	addr := a.addr(a.port)
	l, err := listen(gctx, addr)
	if err != nil {
		return serveerrors.Bind(primaryServer, addr, err)
	}
	handler, serverType := a.primaryHandler(baseCtx)
	srv := newServer(baseCtx, handler)
	a.started(baseCtx, primaryServer, serverType, l.Addr())
	serveErr := serve(srv, l)

	select {
	case err := <-serveErr:
		return serveerrors.Transport(primaryServer, addr, err)
	case <-shutdown:
		log.Info("shutdown.drain", zap.String("server", primaryServer), zap.Duration("timeout", a.shutdownTimeout))
		drainCtx, cancel := context.WithTimeout(baseCtx, a.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			log.Warn("shutdown.drain.error", zap.String("server", primaryServer), zap.Error(err))
			_ = srv.Close()
		}
	case <-gctx.Done():
		_ = srv.Close()
	}
	<-serveErr
	return nil
}

func (a *Application) serveManagement(gctx, baseCtx context.Context, primaryDone <-chan struct{}, handler http.Handler) error {
	addr := a.addr(a.managementPort)
	l, err := listen(gctx, addr)
	if err != nil {
		return serveerrors.Bind(managementServer, addr, err)
	}
	srv := newServer(baseCtx, handler)
	a.started(baseCtx, managementServer, managementServer, l.Addr())
	serveErr := serve(srv, l)

	select {
	case err := <-serveErr:
		return serveerrors.Transport(managementServer, addr, err)
	case <-primaryDone:
	case <-gctx.Done():
	}
	// never drained, probes must not keep the process alive
	_ = srv.Close()
	<-serveErr
	return nil
}

func (a *Application) started(ctx context.Context, server, serverType string, addr net.Addr) {
	logger.FromContext(ctx).Info("Started: http://"+addr.String(), zap.String("server_type", serverType))
	if a.onListen != nil {
		a.onListen(server, addr)
	}
}

// newServer speaks HTTP/1 and cleartext HTTP/2, which gRPC clients use
// without TLS.
func newServer(ctx context.Context, handler http.Handler) *http.Server {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	//exhaustruct:ignore
	return &http.Server{
		Handler:           handler,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func serve(srv *http.Server, l net.Listener) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	return errCh
}
