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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/freiheit-com/servekit/pkg/logger"
)

// StatusResponse builds a synthetic plain text response, e.g. for OnError.
func StatusResponse(code int) *http.Response {
	body := http.StatusText(code) + "\n"
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// Hop-by-hop headers, see RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopByHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, sf := range strings.Split(f, ",") {
			if sf = strings.TrimSpace(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, hh := range hopHeaders {
		h.Del(hh)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// writeResponse relays resp to w and closes its body.
func writeResponse(w http.ResponseWriter, req *http.Request, resp *http.Response) {
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	removeHopByHopHeaders(resp.Header)
	resp.Header.Del("Content-Length")
	copyHeader(w.Header(), resp.Header)
	length := bodyLength(resp)
	if length >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	}
	for k := range resp.Trailer {
		w.Header().Add("Trailer", k)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body == nil {
		return
	}
	if err := copyBody(w, resp.Body, length < 0); err != nil {
		// the status is already sent, the client sees a truncated body
		logger.FromContext(req.Context()).Warn("proxy.copy.error", zap.Error(err))
		return
	}
	for k, vv := range resp.Trailer {
		w.Header().Del(k)
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
}

// bodyLength is the Content-Length to announce, -1 if unknown. Responses
// built by hooks often carry a Body but leave ContentLength at 0.
func bodyLength(resp *http.Response) int64 {
	if resp.ContentLength == 0 && resp.Body != nil && resp.Body != http.NoBody {
		return -1
	}
	return resp.ContentLength
}

func copyBody(w http.ResponseWriter, body io.Reader, flush bool) error {
	if !flush {
		_, err := io.Copy(w, body)
		return err
	}
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			_ = rc.Flush()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
