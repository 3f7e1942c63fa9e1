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

package config

import "strings"

const (
	HealthEndpoint  Endpoint = "/health"
	LiveEndpoint    Endpoint = "/live"
	ReadyEndpoint   Endpoint = "/ready"
	MetricsEndpoint Endpoint = "/metrics"
	VersionEndpoint Endpoint = "/version"
)

// Endpoint is a path on the management socket. Valid endpoints start with "/".
type Endpoint string

func (e Endpoint) Valid() bool {
	return strings.HasPrefix(string(e), "/")
}

func (e Endpoint) String() string {
	return string(e)
}

type Endpoints struct {
	Health  Endpoint `json:"health"`
	Live    Endpoint `json:"live"`
	Ready   Endpoint `json:"ready"`
	Metrics Endpoint `json:"metrics"`
	Version Endpoint `json:"version"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Health:  HealthEndpoint,
		Live:    LiveEndpoint,
		Ready:   ReadyEndpoint,
		Metrics: MetricsEndpoint,
		Version: VersionEndpoint,
	}
}

// Fallback is an invalid endpoint override that was replaced by its default.
type Fallback struct {
	Name     string
	Invalid  Endpoint
	Replaced Endpoint
}

// Normalize replaces every invalid endpoint with its default and reports the replacements.
func (e *Endpoints) Normalize() []Fallback {
	var fallbacks []Fallback
	fix := func(name string, ep *Endpoint, def Endpoint) {
		if ep.Valid() {
			return
		}
		fallbacks = append(fallbacks, Fallback{Name: name, Invalid: *ep, Replaced: def})
		*ep = def
	}
	fix("health", &e.Health, HealthEndpoint)
	fix("live", &e.Live, LiveEndpoint)
	fix("ready", &e.Ready, ReadyEndpoint)
	fix("metrics", &e.Metrics, MetricsEndpoint)
	fix("version", &e.Version, VersionEndpoint)
	return fallbacks
}
