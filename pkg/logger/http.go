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

package logger

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIdHeader = "X-Request-Id"

type injectLogger struct {
	logger *zap.Logger
	inner  http.Handler
}

func (i *injectLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestId := r.Header.Get(RequestIdHeader)
	if requestId == "" {
		requestId = uuid.NewString()
	}
	w.Header().Set(RequestIdHeader, requestId)
	l := i.logger.With(
		zap.String("request_id", requestId),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	i.inner.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), l)))
}

// WithHttpLogger injects the logger into every request context, tagged with
// the request id.
func WithHttpLogger(logger *zap.Logger, inner http.Handler) http.Handler {
	return &injectLogger{
		logger: logger,
		inner:  inner,
	}
}
