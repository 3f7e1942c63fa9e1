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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	serveerrors "github.com/freiheit-com/servekit/pkg/errors"
	"github.com/freiheit-com/servekit/pkg/logger"
)

// Replaced in tests.
var (
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
)

// ShutdownSignal returns a channel that is closed on the first SIGINT or
// SIGTERM, or when ctx is done. The handler is removed afterwards, so a
// second signal terminates the process the default way.
func ShutdownSignal(ctx context.Context) (<-chan struct{}, error) {
	osSignalChannel := make(chan os.Signal, 1)
	if err := installSignalHandler(osSignalChannel); err != nil {
		return nil, serveerrors.Signal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stopSignals(osSignalChannel)
		select {
		case sig := <-osSignalChannel:
			logger.FromContext(ctx).Info("shutdown.signal", zap.Stringer("signal", sig))
		case <-ctx.Done():
		}
	}()
	return done, nil
}

func installSignalHandler(c chan<- os.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("installing signal handler: %v", r)
		}
	}()
	notifySignals(c, syscall.SIGINT, syscall.SIGTERM)
	return nil
}
