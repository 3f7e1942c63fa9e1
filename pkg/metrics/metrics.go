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

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	AttributeServer   = "servekit_server"
	AttributeUpstream = "servekit_upstream"
	AttributeOutcome  = "servekit_outcome"
)

// Init creates a meter provider whose instruments are rendered by the returned
// handler in the Prometheus text format.
func Init() (metric.MeterProvider, http.Handler, error) {
	reg := prometheus.NewPedanticRegistry()

	promExp, err := otelprom.New(otelprom.WithRegisterer(reg), otelprom.WithoutScopeInfo(), otelprom.WithoutTargetInfo())
	if err != nil {
		return nil, nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
	)

	//exhaustruct:ignore
	return meterProvider, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

type ctxKeyType struct{}

var ctxKey ctxKeyType = ctxKeyType{}

// FromContext returns the provider stored by WithProvider, or a no-op provider.
func FromContext(ctx context.Context) metric.MeterProvider {
	if pv, ok := ctx.Value(ctxKey).(metric.MeterProvider); ok {
		return pv
	}
	return noop.NewMeterProvider()
}

func WithProvider(ctx context.Context, pv metric.MeterProvider) context.Context {
	return context.WithValue(ctx, ctxKey, pv)
}
