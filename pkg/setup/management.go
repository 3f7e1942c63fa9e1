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
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/freiheit-com/servekit/pkg/config"
	"github.com/freiheit-com/servekit/pkg/logger"
)

// VersionInfo is served on the version endpoint.
type VersionInfo struct {
	Name      string `json:"name"`
	Component string `json:"component"`
	Version   string `json:"version"`
}

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

type probe int

const (
	probeLive probe = iota
	probeReady
	probeHealth
)

type healthBody struct {
	Status     string            `json:"status"`
	Alive      *bool             `json:"alive,omitempty"`
	Ready      *bool             `json:"ready,omitempty"`
	Background map[string]report `json:"background,omitempty"`
}

type probeHandler struct {
	probe      probe
	indicator  HealthIndicator
	background *HealthServer
}

func (h *probeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	up := true
	var body healthBody
	if h.probe != probeReady {
		alive := h.indicator.Alive(ctx)
		body.Alive = &alive
		up = up && alive
	}
	if h.probe != probeLive {
		ready := h.indicator.Ready(ctx)
		body.Ready = &ready
		body.Background = h.background.reports()
		up = up && ready && h.background.AllReady()
	}
	body.Status = StatusDown
	status := http.StatusServiceUnavailable
	if up {
		body.Status = StatusUp
		status = http.StatusOK
	}
	writeJSON(w, status, body)
}

type versionHandler struct {
	info VersionInfo
}

func (h *versionHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// managementRoutes matches the exact request path. Endpoints are user
// supplied, so they are not interpreted as ServeMux patterns.
type managementRoutes map[string]http.Handler

func (m managementRoutes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

type managementConfig struct {
	endpoints  config.Endpoints
	indicator  HealthIndicator
	background *HealthServer
	metrics    http.Handler
	version    VersionInfo
	basicAuth  *BasicAuth
}

// newManagementHandler serves the probes, metrics and version. Basic auth,
// if configured, protects metrics and version but never the probes.
func newManagementHandler(ctx context.Context, cfg managementConfig) http.Handler {
	log := logger.FromContext(ctx)
	endpoints := cfg.endpoints
	for _, fb := range endpoints.Normalize() {
		log.Warn("config.endpoint.fallback",
			zap.String("endpoint", fb.Name),
			zap.String("invalid", fb.Invalid.String()),
			zap.String("default", fb.Replaced.String()))
	}
	protect := func(h http.Handler) http.Handler {
		if cfg.basicAuth == nil {
			return h
		}
		return NewBasicAuthHandler(cfg.basicAuth, h)
	}

	routes := managementRoutes{}
	add := func(ep config.Endpoint, h http.Handler) {
		if _, exists := routes[ep.String()]; exists {
			log.Warn("management.endpoint.duplicate", zap.String("endpoint", ep.String()))
			return
		}
		routes[ep.String()] = h
	}
	add(endpoints.Health, &probeHandler{probe: probeHealth, indicator: cfg.indicator, background: cfg.background})
	add(endpoints.Live, &probeHandler{probe: probeLive, indicator: cfg.indicator, background: cfg.background})
	add(endpoints.Ready, &probeHandler{probe: probeReady, indicator: cfg.indicator, background: cfg.background})
	add(endpoints.Metrics, protect(cfg.metrics))
	add(endpoints.Version, protect(&versionHandler{info: cfg.version}))
	return routes
}
