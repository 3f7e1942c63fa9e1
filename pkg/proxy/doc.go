/*
Package proxy contains a middleware that forwards selected requests to an
upstream service and serves all others with the wrapped handler.

	layer, err := proxy.NewLayer(proxy.Config[struct{}]{
		Client:   &http.Client{Timeout: 5 * time.Second},
		Upstream: "http://legacy-service:8080",
		ShouldProxy: func(req *http.Request, _ struct{}) bool {
			return strings.HasPrefix(req.URL.Path, "/legacy/")
		},
		OnError: func(err *proxy.Error, _ struct{}) *http.Response {
			return proxy.StatusResponse(http.StatusBadGateway)
		},
	})
	if err != nil {
		// invalid upstream
	}
	handler := layer.Wrap(mux)

All hooks can be called concurrently for different requests. State they
share, like a counter deciding which request to forward, has to be atomic or
guarded by a mutex.

Any HTTP status returned by the upstream is a successful proxy call and goes
through OnResponse. Only transport failures (connection refused, timeouts,
broken connections) reach OnError.
*/
package proxy
