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
	"errors"
	"fmt"
	"net"
)

type ErrorKind int

const (
	// KindInvalidUpstream is only returned by NewLayer, never per request.
	KindInvalidUpstream ErrorKind = iota
	KindTransport
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidUpstream:
		return "invalid upstream"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

type Error struct {
	Kind     ErrorKind
	Upstream string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("proxy %s error for upstream %q: %v", e.Kind, e.Upstream, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsProxyError(err error) (bool, *Error) {
	var pe *Error
	if errors.As(err, &pe) {
		return true, pe
	}
	return false, nil
}

func classify(upstream string, err error) *Error {
	kind := KindTransport
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{
		Kind:     kind,
		Upstream: upstream,
		Err:      err,
	}
}
