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
	"crypto/subtle"
	"net/http"
)

type BasicAuth struct {
	Username string
	Password string
}

func NewBasicAuthHandler(basicAuth *BasicAuth, chainedHandler http.Handler) http.Handler {
	return &BasicAuthHandler{
		basicAuth:      basicAuth,
		chainedHandler: chainedHandler,
	}
}

type BasicAuthHandler struct {
	basicAuth      *BasicAuth
	chainedHandler http.Handler
}

func (h *BasicAuthHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	reqUser, reqPass, ok := req.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(reqUser), []byte(h.basicAuth.Username)) != 1 || subtle.ConstantTimeCompare([]byte(reqPass), []byte(h.basicAuth.Password)) != 1 {
		rw.Header().Set("WWW-Authenticate", `Basic realm="management"`)
		rw.WriteHeader(http.StatusUnauthorized)
		_, _ = rw.Write([]byte("Unauthorised.\n"))
		return
	}
	h.chainedHandler.ServeHTTP(rw, req)
}
