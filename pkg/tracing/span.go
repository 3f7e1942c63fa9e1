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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type OnErrFunc = func(err error) error

// StartSpanFromContext is the same as Start, but also returns an onError function that marks the span as failed.
// The caller still has to End the span.
func StartSpanFromContext(ctx context.Context, name string) (oteltrace.Span, context.Context, OnErrFunc) {
	ctx, mySpan := Start(ctx, name)
	onErr := func(err error) error {
		if err == nil {
			return nil
		}
		mySpan.RecordError(err)
		mySpan.SetStatus(codes.Error, err.Error())
		return err
	}
	return mySpan, ctx, onErr
}
