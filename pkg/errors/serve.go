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

package errors

import (
	"errors"
	"fmt"
)

type ServeErrorKind int

const (
	KindBind ServeErrorKind = iota
	KindTransport
	KindSignal
)

func (k ServeErrorKind) String() string {
	switch k {
	case KindBind:
		return "bind"
	case KindTransport:
		return "transport"
	case KindSignal:
		return "signal"
	}
	return "unknown"
}

// ServeError is a fatal error of one of the listening sockets.
// It always terminates the whole run.
type ServeError struct {
	originalError error
	kind          ServeErrorKind
	server        string
	addr          string
}

func (e *ServeError) Error() string {
	if e.addr == "" {
		return fmt.Sprintf("%s error on %s server: %v", e.kind, e.server, e.originalError)
	}
	return fmt.Sprintf("%s error on %s server (%s): %v", e.kind, e.server, e.addr, e.originalError)
}

func (e *ServeError) Unwrap() error {
	return e.originalError
}

func (e *ServeError) Kind() ServeErrorKind {
	return e.kind
}

func (e *ServeError) Server() string {
	return e.server
}

func (e *ServeError) Addr() string {
	return e.addr
}

func (e *ServeError) IsBind() bool {
	return e.kind == KindBind
}

func (e *ServeError) IsTransport() bool {
	return e.kind == KindTransport
}

func Bind(server, addr string, originalError error) *ServeError {
	return &ServeError{
		originalError: originalError,
		kind:          KindBind,
		server:        server,
		addr:          addr,
	}
}

func Transport(server, addr string, originalError error) *ServeError {
	return &ServeError{
		originalError: originalError,
		kind:          KindTransport,
		server:        server,
		addr:          addr,
	}
}

func Signal(originalError error) *ServeError {
	return &ServeError{
		originalError: originalError,
		kind:          KindSignal,
		server:        "signal watcher",
		addr:          "",
	}
}

func IsServeError(e error) (bool, *ServeError) {
	var se *ServeError
	if errors.As(e, &se) {
		return true, se
	}
	return false, nil
}

func IsBindError(e error) bool {
	ok, se := IsServeError(e)
	return ok && se.IsBind()
}
