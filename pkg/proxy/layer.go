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

package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/freiheit-com/servekit/pkg/logger"
	"github.com/freiheit-com/servekit/pkg/tracing"
)

// Client sends the outbound request. *http.Client satisfies it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes a proxy layer. E is a per-request extension value that is
// computed once by Extension and handed to every hook of the same request.
type Config[E any] struct {
	// Client defaults to an *http.Client that does not follow redirects.
	Client   Client
	Upstream string

	// OnRequest can modify the outbound request before it is sent.
	OnRequest func(req *http.Request, ext E)
	// OnResponse can modify the upstream response before it is relayed.
	OnResponse func(resp *http.Response, ext E)
	// OnError maps a transport failure to the response for the client. A nil
	// result becomes 502.
	OnError     func(err *Error, ext E) *http.Response
	ShouldProxy func(req *http.Request, ext E) bool
	Extension   func(req *http.Request) E
}

type Layer[E any] struct {
	client      Client
	upstream    *url.URL
	onRequest   func(*http.Request, E)
	onResponse  func(*http.Response, E)
	onError     func(*Error, E) *http.Response
	shouldProxy func(*http.Request, E) bool
	extension   func(*http.Request) E
}

func NewLayer[E any](cfg Config[E]) (*Layer[E], error) {
	upstream, err := parseUpstream(cfg.Upstream)
	if err != nil {
		return nil, &Error{
			Kind:     KindInvalidUpstream,
			Upstream: cfg.Upstream,
			Err:      err,
		}
	}
	l := &Layer[E]{
		client:      cfg.Client,
		upstream:    upstream,
		onRequest:   cfg.OnRequest,
		onResponse:  cfg.OnResponse,
		onError:     cfg.OnError,
		shouldProxy: cfg.ShouldProxy,
		extension:   cfg.Extension,
	}
	if l.client == nil {
		l.client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if l.onRequest == nil {
		l.onRequest = func(*http.Request, E) {}
	}
	if l.onResponse == nil {
		l.onResponse = func(*http.Response, E) {}
	}
	if l.onError == nil {
		l.onError = func(*Error, E) *http.Response {
			return StatusResponse(http.StatusBadGateway)
		}
	}
	if l.shouldProxy == nil {
		l.shouldProxy = func(*http.Request, E) bool { return true }
	}
	if l.extension == nil {
		l.extension = func(*http.Request) E {
			var zero E
			return zero
		}
	}
	return l, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q, expected http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if u.User != nil {
		return nil, fmt.Errorf("user info is not supported")
	}
	if u.Fragment != "" {
		return nil, fmt.Errorf("fragment is not supported")
	}
	return u, nil
}

// Upstream returns a copy of the parsed upstream URL.
func (l *Layer[E]) Upstream() *url.URL {
	u := *l.upstream
	return &u
}

// Wrap returns a handler that forwards requests selected by ShouldProxy and
// serves all others with inner.
func (l *Layer[E]) Wrap(inner http.Handler) http.Handler {
	return &service[E]{layer: l, inner: inner}
}

// Middleware is Wrap in the shape used by router middleware chains.
func (l *Layer[E]) Middleware() func(http.Handler) http.Handler {
	return l.Wrap
}

type service[E any] struct {
	layer *Layer[E]
	inner http.Handler
}

func (s *service[E]) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ext := s.layer.extension(req)
	if !s.layer.shouldProxy(req, ext) {
		s.inner.ServeHTTP(w, req)
		return
	}
	resp := s.layer.forward(req, ext)
	writeResponse(w, req, resp)
}

func (l *Layer[E]) forward(req *http.Request, ext E) *http.Response {
	span, ctx, onErr := tracing.StartSpanFromContext(req.Context(), "proxy.forward")
	defer span.End()
	out := l.outbound(ctx, req)
	l.onRequest(out, ext)
	log := logger.FromContext(ctx)
	log.Debug("proxy.forward", zap.String("method", out.Method), zap.String("url", out.URL.String()))
	resp, err := l.client.Do(out)
	if err != nil {
		pe := classify(l.upstream.String(), err)
		_ = onErr(pe)
		log.Warn("proxy.upstream.error", zap.Stringer("kind", pe.Kind), zap.Error(err))
		resp = l.onError(pe, ext)
		if resp == nil {
			resp = StatusResponse(http.StatusBadGateway)
		}
		return resp
	}
	l.onHookResponse(resp, ext)
	return resp
}

type upstreamBody struct {
	io.ReadCloser
}

// onHookResponse runs OnResponse. A body replaced by the hook is relayed with
// unknown length unless the hook also set ContentLength.
func (l *Layer[E]) onHookResponse(resp *http.Response, ext E) {
	body := &upstreamBody{ReadCloser: resp.Body}
	length := resp.ContentLength
	resp.Body = body
	l.onResponse(resp, ext)
	if kept, ok := resp.Body.(*upstreamBody); ok && kept == body {
		resp.Body = body.ReadCloser
		return
	}
	if resp.ContentLength == length {
		resp.ContentLength = -1
	}
}

// outbound clones req and points it at the upstream.
func (l *Layer[E]) outbound(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL.Scheme = l.upstream.Scheme
	out.URL.Host = l.upstream.Host
	out.URL.Path = joinPath(l.upstream.Path, req.URL.Path)
	out.URL.RawPath = ""
	switch {
	case l.upstream.RawQuery == "":
		out.URL.RawQuery = req.URL.RawQuery
	case req.URL.RawQuery == "":
		out.URL.RawQuery = l.upstream.RawQuery
	default:
		out.URL.RawQuery = l.upstream.RawQuery + "&" + req.URL.RawQuery
	}
	out.Host = l.upstream.Host
	if req.ContentLength == 0 {
		out.Body = nil
	}
	removeHopByHopHeaders(out.Header)
	return out
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
