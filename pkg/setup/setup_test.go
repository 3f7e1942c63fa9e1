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

package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/freiheit-com/servekit/pkg/config"
	serveerrors "github.com/freiheit-com/servekit/pkg/errors"
	"github.com/freiheit-com/servekit/pkg/logger/testlogger"
	"github.com/freiheit-com/servekit/pkg/tracing"
)

type running struct {
	primary    string
	management string
	errCh      chan error
	cancel     context.CancelFunc
}

// stop cancels the run and returns its result.
func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("application did not stop")
		return nil
	}
}

// start runs app on random local ports and waits until both sockets listen.
func start(t *testing.T, ctx context.Context, app *Application) *running {
	t.Helper()
	var mx sync.Mutex
	addrs := map[string]string{}
	listening := make(chan struct{}, 2)
	app.Host("127.0.0.1").Port(0).ManagementPort(0).OnListen(func(server string, addr net.Addr) {
		mx.Lock()
		addrs[server] = addr.String()
		mx.Unlock()
		listening <- struct{}{}
	})
	ctx, cancel := context.WithCancel(ctx)
	r := &running{errCh: make(chan error, 1), cancel: cancel}
	go func() {
		r.errCh <- app.Run(ctx)
	}()
	for range 2 {
		select {
		case <-listening:
		case err := <-r.errCh:
			cancel()
			t.Fatalf("application stopped early: %v", err)
		case <-time.After(10 * time.Second):
			cancel()
			t.Fatal("application did not start")
		}
	}
	mx.Lock()
	defer mx.Unlock()
	r.primary = "http://" + addrs[primaryServer]
	r.management = "http://" + addrs[managementServer]
	t.Cleanup(func() { cancel() })
	return r
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func helloWorld() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Hello world")
	})
	return mux
}

// fakeSignals replaces the os signal registration with a channel the test can write to.
func fakeSignals(t *testing.T) <-chan chan<- os.Signal {
	registered := make(chan chan<- os.Signal, 1)
	backNotify, backStop := notifySignals, stopSignals
	notifySignals = func(c chan<- os.Signal, _ ...os.Signal) {
		registered <- c
	}
	stopSignals = func(chan<- os.Signal) {}
	t.Cleanup(func() {
		notifySignals, stopSignals = backNotify, backStop
	})
	return registered
}

func TestRestOnly(t *testing.T) {
	fakeSignals(t)
	app := NewApplication(nil).RestRouter(helloWorld())
	r := start(t, context.Background(), app)

	tcs := []struct {
		Name           string
		Url            string
		ExpectedStatus int
		ExpectedBody   string
	}{
		{
			Name:           "rest router",
			Url:            r.primary + "/",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   "Hello world",
		},
		{
			Name:           "unknown rest route",
			Url:            r.primary + "/nope",
			ExpectedStatus: http.StatusNotFound,
			ExpectedBody:   "404 page not found\n",
		},
		{
			Name:           "health",
			Url:            r.management + "/health",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `{"status":"UP","alive":true,"ready":true}`,
		},
		{
			Name:           "live",
			Url:            r.management + "/live",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `{"status":"UP","alive":true}`,
		},
		{
			Name:           "ready",
			Url:            r.management + "/ready",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `{"status":"UP","ready":true}`,
		},
		{
			Name:           "version",
			Url:            r.management + "/version",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `{"name":"default","component":"default","version":"default"}`,
		},
		{
			Name:           "management is not the rest router",
			Url:            r.management + "/",
			ExpectedStatus: http.StatusNotFound,
			ExpectedBody:   "404 page not found\n",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			status, body := get(t, tc.Url)
			if status != tc.ExpectedStatus {
				t.Errorf("wrong status, expected %d, got %d", tc.ExpectedStatus, status)
			}
			if diff := cmp.Diff(tc.ExpectedBody, body); diff != "" {
				t.Errorf("body mismatch (-want, +got):\n%s", diff)
			}
		})
	}

	status, _ := get(t, r.management+"/metrics")
	if status != http.StatusOK {
		t.Errorf("wrong metrics status %d", status)
	}

	if err := r.stop(t); err != nil {
		t.Errorf("expected graceful stop, got %v", err)
	}
}

func TestRestAndGrpc(t *testing.T) {
	fakeSignals(t)
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, health.NewServer())
	app := NewApplication(nil).RestRouter(helloWorld()).GrpcRouter(grpcServer)
	r := start(t, context.Background(), app)

	status, body := get(t, r.primary+"/")
	if status != http.StatusOK || body != "Hello world" {
		t.Errorf("expected rest response, got %d %q", status, body)
	}

	conn, err := grpc.NewClient(strings.TrimPrefix(r.primary, "http://"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("grpc call failed: %v", err)
	}
	if diff := cmp.Diff(grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus()); diff != "" {
		t.Errorf("status mismatch (-want, +got):\n%s", diff)
	}
	_ = conn.Close()

	if err := r.stop(t); err != nil {
		t.Errorf("expected graceful stop, got %v", err)
	}
}

func TestHealthIndicator(t *testing.T) {
	fakeSignals(t)
	app := NewApplication(HealthFuncs{
		ReadyFunc: func(context.Context) bool { return false },
	})
	r := start(t, context.Background(), app)

	tcs := []struct {
		Path           string
		ExpectedStatus int
		ExpectedBody   string
	}{
		{Path: "/health", ExpectedStatus: http.StatusServiceUnavailable, ExpectedBody: `{"status":"DOWN","alive":true,"ready":false}`},
		{Path: "/live", ExpectedStatus: http.StatusOK, ExpectedBody: `{"status":"UP","alive":true}`},
		{Path: "/ready", ExpectedStatus: http.StatusServiceUnavailable, ExpectedBody: `{"status":"DOWN","ready":false}`},
	}
	for _, tc := range tcs {
		t.Run(tc.Path, func(t *testing.T) {
			status, body := get(t, r.management+tc.Path)
			if status != tc.ExpectedStatus {
				t.Errorf("wrong status, expected %d, got %d", tc.ExpectedStatus, status)
			}
			if diff := cmp.Diff(tc.ExpectedBody, body); diff != "" {
				t.Errorf("body mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestManagementEndpointOverrides(t *testing.T) {
	fakeSignals(t)
	logs, ctx := testlogger.Start(context.Background())
	endpoints := config.DefaultEndpoints()
	endpoints.Health = "/healthz"
	endpoints.Live = "livez"
	app := NewApplication(nil).Endpoints(endpoints)
	r := start(t, ctx, app)

	tcs := []struct {
		Path           string
		ExpectedStatus int
	}{
		{Path: "/healthz", ExpectedStatus: http.StatusOK},
		{Path: "/health", ExpectedStatus: http.StatusNotFound},
		{Path: "/live", ExpectedStatus: http.StatusOK},
		{Path: "/livez", ExpectedStatus: http.StatusNotFound},
	}
	for _, tc := range tcs {
		t.Run(tc.Path, func(t *testing.T) {
			status, _ := get(t, r.management+tc.Path)
			if status != tc.ExpectedStatus {
				t.Errorf("wrong status, expected %d, got %d", tc.ExpectedStatus, status)
			}
		})
	}

	fallbacks := logs.FilterMessage("config.endpoint.fallback").All()
	if len(fallbacks) != 1 {
		t.Fatalf("expected one fallback warning, got %d", len(fallbacks))
	}
	if diff := cmp.Diff(map[string]any{"endpoint": "live", "invalid": "livez", "default": "/live"}, fallbacks[0].ContextMap()); diff != "" {
		t.Errorf("fallback fields mismatch (-want, +got):\n%s", diff)
	}
}

func TestManagementBasicAuth(t *testing.T) {
	fakeSignals(t)
	app := NewApplication(nil).ManagementBasicAuth(&BasicAuth{Username: "admin", Password: "secret"})
	r := start(t, context.Background(), app)

	if status, _ := get(t, r.management+"/health"); status != http.StatusOK {
		t.Errorf("probes must not need credentials, got %d", status)
	}
	if status, _ := get(t, r.management+"/metrics"); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for metrics, got %d", status)
	}
	req, err := http.NewRequest(http.MethodGet, r.management+"/version", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with credentials, got %d", resp.StatusCode)
	}
}

func TestSettersLastCallWins(t *testing.T) {
	app := NewApplication(nil).
		Host("10.0.0.1").Host("127.0.0.1").
		Port(8000).Port(9090).
		ManagementPort(8001).ManagementPort(9091).
		ShutdownTimeout(time.Second).ShutdownTimeout(5 * time.Second)

	var mx sync.Mutex
	var attempted []string
	backListen := listen
	defer func() { listen = backListen }()
	listen = func(_ context.Context, addr string) (net.Listener, error) {
		mx.Lock()
		defer mx.Unlock()
		attempted = append(attempted, addr)
		return nil, errors.New("not listening in this test")
	}
	fakeSignals(t)

	err := app.Run(context.Background())
	if !serveerrors.IsBindError(err) {
		t.Fatalf("expected bind error, got %v", err)
	}
	mx.Lock()
	defer mx.Unlock()
	for _, addr := range attempted {
		if addr != "127.0.0.1:9090" && addr != "127.0.0.1:9091" {
			t.Errorf("unexpected bind address %s", addr)
		}
	}
	if app.shutdownTimeout != 5*time.Second {
		t.Errorf("expected shutdown timeout 5s, got %s", app.shutdownTimeout)
	}
}

func TestDefaults(t *testing.T) {
	app := NewApplication(nil)
	if got := app.addr(app.port); got != "0.0.0.0:8000" {
		t.Errorf("wrong default primary address %s", got)
	}
	if got := app.addr(app.managementPort); got != "0.0.0.0:8001" {
		t.Errorf("wrong default management address %s", got)
	}
	if app.health != AlwaysReadyAndAlive {
		t.Errorf("expected AlwaysReadyAndAlive as default health indicator")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 7000
	cfg.ManagementPort = 7001
	cfg.ServiceName = "demo"
	cfg.ComponentName = "api"
	cfg.Version = "1.2.3"
	cfg.ShutdownTimeout = config.Duration(3 * time.Second)
	cfg.Management.Endpoints.Ready = "/readyz"

	app := NewFromConfig(cfg, nil)
	if got := app.addr(app.port); got != "127.0.0.1:7000" {
		t.Errorf("wrong primary address %s", got)
	}
	if got := app.addr(app.managementPort); got != "127.0.0.1:7001" {
		t.Errorf("wrong management address %s", got)
	}
	if diff := cmp.Diff(VersionInfo{Name: "demo", Component: "api", Version: "1.2.3"}, app.version); diff != "" {
		t.Errorf("version mismatch (-want, +got):\n%s", diff)
	}
	if app.endpoints.Ready != "/readyz" {
		t.Errorf("wrong ready endpoint %s", app.endpoints.Ready)
	}
	if app.shutdownTimeout != 3*time.Second {
		t.Errorf("wrong shutdown timeout %s", app.shutdownTimeout)
	}
}

func TestBindFailure(t *testing.T) {
	tcs := []struct {
		Name           string
		Occupy         func(app *Application, port uint16) *Application
		ExpectedServer string
	}{
		{
			Name: "primary port in use",
			Occupy: func(app *Application, port uint16) *Application {
				return app.Port(port).ManagementPort(0)
			},
			ExpectedServer: primaryServer,
		},
		{
			Name: "management port in use",
			Occupy: func(app *Application, port uint16) *Application {
				return app.Port(0).ManagementPort(port)
			},
			ExpectedServer: managementServer,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			fakeSignals(t)
			occupied, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			defer occupied.Close()
			port := uint16(occupied.Addr().(*net.TCPAddr).Port)

			app := tc.Occupy(NewApplication(nil).Host("127.0.0.1"), port)
			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Run(context.Background())
			}()
			select {
			case err := <-errCh:
				ok, se := serveerrors.IsServeError(err)
				if !ok {
					t.Fatalf("expected serve error, got %v", err)
				}
				if se.Kind() != serveerrors.KindBind {
					t.Errorf("expected bind error, got %s", se.Kind())
				}
				if se.Server() != tc.ExpectedServer {
					t.Errorf("expected %s server to fail, got %s", tc.ExpectedServer, se.Server())
				}
			case <-time.After(10 * time.Second):
				t.Fatal("run did not fail")
			}
		})
	}
}

func TestRunOnlyOnce(t *testing.T) {
	fakeSignals(t)
	backListen := listen
	defer func() { listen = backListen }()
	listen = func(context.Context, string) (net.Listener, error) {
		return nil, errors.New("no sockets in this test")
	}

	app := NewApplication(nil)
	if err := app.Run(context.Background()); !serveerrors.IsBindError(err) {
		t.Fatalf("expected bind error on first run, got %v", err)
	}
	if err := app.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("expected ErrAlreadyRun, got %v", err)
	}
}

func TestGracefulShutdownOnSignal(t *testing.T) {
	tcs := []struct {
		Name   string
		Signal os.Signal
	}{
		{Name: "terminate", Signal: syscall.SIGTERM},
		{Name: "interrupt", Signal: syscall.SIGINT},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			registered := fakeSignals(t)
			inFlight := make(chan struct{})
			release := make(chan struct{})
			slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				close(inFlight)
				<-release
				_, _ = io.WriteString(w, "drained")
			})
			r := start(t, context.Background(), NewApplication(nil).RestRouter(slow))
			sigCh := <-registered

			type result struct {
				status int
				body   string
			}
			resCh := make(chan result, 1)
			go func() {
				resp, err := http.Get(r.primary + "/")
				if err != nil {
					resCh <- result{body: err.Error()}
					return
				}
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				resCh <- result{resp.StatusCode, string(body)}
			}()
			<-inFlight
			sigCh <- tc.Signal

			select {
			case err := <-r.errCh:
				t.Fatalf("run returned before the request drained: %v", err)
			case <-time.After(100 * time.Millisecond):
			}
			close(release)

			res := <-resCh
			if res.status != http.StatusOK || res.body != "drained" {
				t.Errorf("in-flight request was not drained, got %d %q", res.status, res.body)
			}
			select {
			case err := <-r.errCh:
				if err != nil {
					t.Errorf("expected nil after graceful shutdown, got %v", err)
				}
			case <-time.After(10 * time.Second):
				t.Fatal("run did not return after shutdown")
			}
			if _, err := net.Dial("tcp", strings.TrimPrefix(r.management, "http://")); err == nil {
				t.Errorf("management socket is still open")
			}
		})
	}
}

func TestSignalHandlerFailure(t *testing.T) {
	backNotify := notifySignals
	defer func() { notifySignals = backNotify }()
	notifySignals = func(chan<- os.Signal, ...os.Signal) {
		panic("no signals here")
	}

	err := NewApplication(nil).Run(context.Background())
	ok, se := serveerrors.IsServeError(err)
	if !ok || se.Kind() != serveerrors.KindSignal {
		t.Fatalf("expected signal error, got %v", err)
	}
}

func TestBackgroundTaskFailureStopsRun(t *testing.T) {
	fakeSignals(t)
	app := NewApplication(nil).Host("127.0.0.1").Port(0).ManagementPort(0).
		Background("failing", func(ctx context.Context, hr *HealthReporter) error {
			return fmt.Errorf("lost connection")
		})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(context.Background())
	}()
	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "lost connection") {
			t.Errorf("expected background error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not fail")
	}
}

func TestBackgroundTaskStopsWithPrimary(t *testing.T) {
	fakeSignals(t)
	stopped := make(chan struct{})
	app := NewApplication(nil).Background("worker", func(ctx context.Context, hr *HealthReporter) error {
		hr.ReportReady("working")
		<-ctx.Done()
		close(stopped)
		return nil
	})
	r := start(t, context.Background(), app)
	if err := r.stop(t); err != nil {
		t.Errorf("expected graceful stop, got %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Errorf("background task was not stopped")
	}
}

func TestBasicAuthHandler(t *testing.T) {
	tcs := []struct {
		desc            string
		basicAuthServer *BasicAuth
		requestUser     string
		requestPassword string

		expectedResponseCode     int
		expectedChainHandlerCall bool
	}{
		{
			desc:                     "returns 401 on wrong auth, wrong username",
			basicAuthServer:          &BasicAuth{"test", "666"},
			requestUser:              "foo",
			requestPassword:          "666",
			expectedResponseCode:     401,
			expectedChainHandlerCall: false,
		},
		{
			desc:                     "returns 401 on wrong auth, wrong password",
			basicAuthServer:          &BasicAuth{"test", "666"},
			requestUser:              "test",
			requestPassword:          "888",
			expectedResponseCode:     401,
			expectedChainHandlerCall: false,
		},
		{
			desc:                     "passes request true, if auth ok",
			basicAuthServer:          &BasicAuth{"test", "666"},
			requestUser:              "test",
			requestPassword:          "666",
			expectedResponseCode:     200,
			expectedChainHandlerCall: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			testChainHandler := &testChainHandler{}

			testRequest := httptest.NewRequest("GET", "http://example.com/", nil)
			testRequest.SetBasicAuth(tc.requestUser, tc.requestPassword)

			testResponse := httptest.NewRecorder()

			handler := NewBasicAuthHandler(tc.basicAuthServer, testChainHandler)
			handler.ServeHTTP(testResponse, testRequest)

			if tc.expectedChainHandlerCall != testChainHandler.called {
				t.Errorf("expectedChainHandlerCall %t, got %t", tc.expectedChainHandlerCall, testChainHandler.called)
			}
			if tc.expectedResponseCode != testResponse.Code {
				t.Errorf("expectedResponseCode %d, got %d", tc.expectedResponseCode, testResponse.Code)
			}
		})
	}
}

//helper

type testChainHandler struct {
	called bool
}

func (h *testChainHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	h.called = true
}

func TestShutdownCallbacksRunInReverseOrder(t *testing.T) {
	registered := fakeSignals(t)
	obs, ctx := testlogger.Start(context.Background())
	var mx sync.Mutex
	var calls []string
	called := func(name string) {
		mx.Lock()
		defer mx.Unlock()
		calls = append(calls, name)
	}
	callback := func(name string, err error) func(context.Context) error {
		return func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("callback %s runs without deadline", name)
			}
			called(name)
			return err
		}
	}
	app := NewApplication(nil).
		ShutdownTimeout(2*time.Second).
		Background("worker", func(ctx context.Context, hr *HealthReporter) error {
			<-ctx.Done()
			called("worker stopped")
			return nil
		}).
		OnShutdown("first", callback("first", nil)).
		OnShutdown("second", callback("second", errors.New("flush failed"))).
		OnShutdown("third", callback("third", nil))
	r := start(t, ctx, app)
	sigCh := <-registered

	mx.Lock()
	if len(calls) != 0 {
		t.Errorf("callbacks ran before shutdown: %v", calls)
	}
	mx.Unlock()

	sigCh <- syscall.SIGTERM
	select {
	case err := <-r.errCh:
		if err != nil {
			t.Errorf("expected nil after graceful shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after shutdown")
	}

	mx.Lock()
	defer mx.Unlock()
	if diff := cmp.Diff([]string{"worker stopped", "third", "second", "first"}, calls); diff != "" {
		t.Errorf("callback order mismatch (-want, +got):\n%s", diff)
	}
	failed := obs.FilterMessage("shutdown.failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["handler"] != "second" {
		t.Errorf("expected one shutdown.failed log for second, got %v", failed)
	}
}

func TestShutdownCallbacksRunAfterFailure(t *testing.T) {
	fakeSignals(t)
	backListen := listen
	defer func() { listen = backListen }()
	listen = func(context.Context, string) (net.Listener, error) {
		return nil, errors.New("address in use")
	}

	ran := make(chan struct{}, 1)
	err := NewApplication(nil).
		OnShutdown("cleanup", func(context.Context) error {
			ran <- struct{}{}
			return nil
		}).
		Run(context.Background())
	if !serveerrors.IsBindError(err) {
		t.Fatalf("expected bind error, got %v", err)
	}
	select {
	case <-ran:
	default:
		t.Errorf("shutdown callback did not run")
	}
}

func TestDefaultTracingLayer(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx := tracing.WithTracerProvider(context.Background(), tp)
	router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if trace.SpanContextFromContext(r.Context()).IsValid() {
			_, _ = io.WriteString(w, "traced")
			return
		}
		_, _ = io.WriteString(w, "untraced")
	})

	tcs := []struct {
		Name         string
		Configure    func(app *Application) *Application
		ExpectedBody string
	}{
		{
			Name:         "enabled by default",
			Configure:    func(app *Application) *Application { return app },
			ExpectedBody: "traced",
		},
		{
			Name:         "disabled",
			Configure:    func(app *Application) *Application { return app.DefaultTracingLayer(false) },
			ExpectedBody: "untraced",
		},
		{
			Name: "last call wins",
			Configure: func(app *Application) *Application {
				return app.DefaultTracingLayer(false).DefaultTracingLayer(true)
			},
			ExpectedBody: "traced",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			fakeSignals(t)
			r := start(t, ctx, tc.Configure(NewApplication(nil).RestRouter(router)))
			_, body := get(t, r.primary+"/")
			if diff := cmp.Diff(tc.ExpectedBody, body); diff != "" {
				t.Errorf("body mismatch (-want, +got):\n%s", diff)
			}
			if err := r.stop(t); err != nil {
				t.Errorf("expected graceful stop, got %v", err)
			}
		})
	}
}
