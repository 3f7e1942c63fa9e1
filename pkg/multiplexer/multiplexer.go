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

/*
Package multiplexer serves REST and gRPC on one socket.

Every request is classified by its Content-Type header: the exact value
"application/grpc" selects the gRPC handler, anything else (absent, other
values, "application/grpc+proto", different casing) selects the REST handler.
*/
package multiplexer

import (
	"net/http"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"google.golang.org/grpc"
)

const GrpcContentType = "application/grpc"

type Route int

const (
	RouteRest Route = iota
	RouteGrpc
	RouteGrpcWeb
)

func (r Route) String() string {
	switch r {
	case RouteRest:
		return "rest"
	case RouteGrpc:
		return "grpc"
	case RouteGrpcWeb:
		return "grpc-web"
	}
	return "unknown"
}

// Classify selects the handler for a request. It only looks at the first
// Content-Type value and compares it byte by byte.
func Classify(req *http.Request) Route {
	if req.Header.Get("Content-Type") == GrpcContentType {
		return RouteGrpc
	}
	return RouteRest
}

type Option func(m *Multiplexer)

// WithGrpcWeb additionally routes gRPC-Web requests to srv. The exact gRPC
// match is checked first.
func WithGrpcWeb(srv *grpc.Server, opts ...grpcweb.Option) Option {
	return func(m *Multiplexer) {
		m.grpcWeb = grpcweb.WrapServer(srv, opts...)
	}
}

// Multiplexer holds no mutable state and can be shared by all connections.
type Multiplexer struct {
	rest    http.Handler
	grpc    http.Handler
	grpcWeb *grpcweb.WrappedGrpcServer
}

// New builds the composite handler. *grpc.Server implements http.Handler for
// HTTP/2 requests, so it can be passed as grpcHandler directly.
func New(rest http.Handler, grpcHandler http.Handler, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		rest:    rest,
		grpc:    grpcHandler,
		grpcWeb: nil,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Multiplexer) route(req *http.Request) Route {
	route := Classify(req)
	if route == RouteRest && m.grpcWeb != nil && m.grpcWeb.IsGrpcWebRequest(req) {
		return RouteGrpcWeb
	}
	return route
}

func (m *Multiplexer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch m.route(req) {
	case RouteGrpc:
		m.grpc.ServeHTTP(w, req)
	case RouteGrpcWeb:
		m.grpcWeb.ServeHTTP(w, req)
	default:
		m.rest.ServeHTTP(w, req)
	}
}

var (
	_ http.Handler = (*Multiplexer)(nil)
)
