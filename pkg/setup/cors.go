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
	"net/http"
	"strconv"
)

type CORSPolicy struct {
	AllowMethods     string
	AllowHeaders     string
	AllowOrigin      string
	AllowCredentials bool
	MaxAge           int
}

// CORSMiddleware answers preflight requests and tags cross origin responses.
// A nil policy rejects the origin with 403.
type CORSMiddleware struct {
	PolicyFor   func(req *http.Request) *CORSPolicy
	NextHandler http.Handler
}

func (check *CORSMiddleware) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	origin := req.Header.Get("Origin")
	if origin == "" {
		check.NextHandler.ServeHTTP(rw, req)
		return
	}

	policy := check.PolicyFor(req)
	if policy == nil {
		rw.WriteHeader(http.StatusForbidden)
		return
	}

	if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
		rw.Header().Add("Access-Control-Allow-Methods", policy.AllowMethods)
		rw.Header().Add("Access-Control-Allow-Headers", policy.AllowHeaders)
		if policy.AllowCredentials {
			rw.Header().Add("Access-Control-Allow-Credentials", "true")
		}
		rw.Header().Add("Access-Control-Max-Age", strconv.Itoa(policy.MaxAge))
		rw.Header().Add("Access-Control-Allow-Origin", policy.AllowOrigin)
		rw.WriteHeader(http.StatusNoContent)
		return
	}
	rw.Header().Add("Access-Control-Allow-Origin", policy.AllowOrigin)
	if policy.AllowCredentials {
		rw.Header().Add("Access-Control-Allow-Credentials", "true")
	}
	check.NextHandler.ServeHTTP(rw, req)
}
