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
	"fmt"
	"time"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultManagementPort  = 8001
	DefaultShutdownTimeout = 30 * time.Second
	DefaultTracesEndpoint  = "localhost:4317"
)

// AppConfig is the resolved configuration of one application.
// Fields without an explicit source keep the values of Default().
type AppConfig struct {
	Host            string           `json:"host"`
	Port            uint16           `json:"port"`
	ManagementPort  uint16           `json:"managementPort" split_words:"true"`
	ServiceName     string           `json:"serviceName" split_words:"true"`
	ComponentName   string           `json:"componentName" split_words:"true"`
	Version         string           `json:"version"`
	ShutdownTimeout Duration         `json:"shutdownTimeout" split_words:"true"`
	EnableTracing   bool             `json:"enableTracing" split_words:"true"`
	TracesEndpoint  string           `json:"tracesEndpoint" split_words:"true"`
	Management      ManagementConfig `json:"management"`
}

type ManagementConfig struct {
	Endpoints Endpoints `json:"endpoints"`
}

func Default() *AppConfig {
	return &AppConfig{
		Host:            DefaultHost,
		Port:            DefaultPort,
		ManagementPort:  DefaultManagementPort,
		ServiceName:     "default",
		ComponentName:   "default",
		Version:         "default",
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
		EnableTracing:   false,
		TracesEndpoint:  DefaultTracesEndpoint,
		Management: ManagementConfig{
			Endpoints: DefaultEndpoints(),
		},
	}
}

// Duration accepts Go duration strings ("30s", "1m") in files and environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
