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

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/freiheit-com/servekit/pkg/logger"
)

// Source is one layer of configuration. Later sources override earlier ones.
type Source interface {
	apply(targets ...any) error
}

type fileSource struct {
	path string
}

func (s fileSource) apply(targets ...any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", s.path, err)
	}
	for _, target := range targets {
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("parsing config file %q: %w", s.path, err)
		}
	}
	return nil
}

type bytesSource struct {
	data []byte
}

func (s bytesSource) apply(targets ...any) error {
	for _, target := range targets {
		if err := yaml.Unmarshal(s.data, target); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	return nil
}

type envSource struct {
	prefix string
}

func (s envSource) apply(targets ...any) error {
	// no default tags: variables that are not set leave the field untouched
	for _, target := range targets {
		if err := envconfig.Process(s.prefix, target); err != nil {
			return fmt.Errorf("reading environment with prefix %q: %w", s.prefix, err)
		}
	}
	return nil
}

// File reads a YAML or JSON file. A missing file is an error.
func File(path string) Source {
	return fileSource{path: path}
}

// Bytes reads YAML or JSON from memory.
func Bytes(data []byte) Source {
	return bytesSource{data: data}
}

// EnvPrefix reads variables like PREFIX_PORT or PREFIX_MANAGEMENT_ENDPOINTS_HEALTH.
func EnvPrefix(prefix string) Source {
	return envSource{prefix: prefix}
}

// Empty is the private section of applications without own settings.
type Empty struct{}

// Load layers the sources over Default().
func Load(ctx context.Context, sources ...Source) (*AppConfig, error) {
	cfg, _, err := LoadWith[Empty](ctx, sources...)
	return cfg, err
}

// LoadWith is Load plus a private section of type T, which must be a struct.
// Every source is decoded into both: files and byte strings with the keys of
// T at the top level, the environment as PREFIX_<FIELD>. T starts at its zero
// value; envconfig default tags on T would override the files.
func LoadWith[T any](ctx context.Context, sources ...Source) (*AppConfig, *T, error) {
	cfg := Default()
	private := new(T)
	for _, src := range sources {
		if err := src.apply(cfg, private); err != nil {
			return nil, nil, err
		}
	}
	if net.ParseIP(cfg.Host) == nil {
		return nil, nil, fmt.Errorf("invalid host %q: not an ip address", cfg.Host)
	}
	for _, fb := range cfg.Management.Endpoints.Normalize() {
		logger.FromContext(ctx).Warn("config.endpoint.fallback",
			zap.String("endpoint", fb.Name),
			zap.String("invalid", fb.Invalid.String()),
			zap.String("default", fb.Replaced.String()))
	}
	return cfg, private, nil
}
