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
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HealthIndicator is asked by the management socket whether the service is
// alive and whether it can take traffic. Implementations are called
// concurrently.
type HealthIndicator interface {
	Alive(ctx context.Context) bool
	Ready(ctx context.Context) bool
}

type alwaysReadyAndAlive struct{}

func (alwaysReadyAndAlive) Alive(context.Context) bool { return true }
func (alwaysReadyAndAlive) Ready(context.Context) bool { return true }

// AlwaysReadyAndAlive is used when an application has no health indicator.
var AlwaysReadyAndAlive HealthIndicator = alwaysReadyAndAlive{}

// HealthFuncs adapts plain functions to a HealthIndicator. A nil function reports true.
type HealthFuncs struct {
	AliveFunc func(ctx context.Context) bool
	ReadyFunc func(ctx context.Context) bool
}

func (h HealthFuncs) Alive(ctx context.Context) bool {
	return h.AliveFunc == nil || h.AliveFunc(ctx)
}

func (h HealthFuncs) Ready(ctx context.Context) bool {
	return h.ReadyFunc == nil || h.ReadyFunc(ctx)
}

type Health uint

const (
	HealthStarting Health = iota
	HealthReady
	HealthBackoff
	HealthFailed
)

func (h Health) String() string {
	switch h {
	case HealthStarting:
		return "starting"
	case HealthReady:
		return "ready"
	case HealthBackoff:
		return "backoff"
	case HealthFailed:
		return "failed"
	}
	return "unknown"
}

func (h Health) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

type HealthReporter struct {
	server  *HealthServer
	name    string
	backoff backoff.BackOff
}

type report struct {
	Health  Health `json:"health"`
	Message string `json:"message,omitempty"`

	// a nil Deadline is interpreted as "valid forever"
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (r *report) isReady(now time.Time) bool {
	if r.Health != HealthReady {
		return false
	}
	if r.Deadline == nil {
		return true
	}
	return now.Before(*r.Deadline)
}

func (r *HealthReporter) ReportReady(message string) {
	r.ReportHealth(HealthReady, message)
}

func (r *HealthReporter) ReportHealth(health Health, message string) {
	r.ReportHealthTtl(health, message, nil)
}

// ReportHealthTtl returns the deadline (for testing)
func (r *HealthReporter) ReportHealthTtl(health Health, message string, ttl *time.Duration) *time.Time {
	if r == nil {
		return nil
	}
	if health == HealthReady {
		r.backoff.Reset()
	}
	r.server.mx.Lock()
	defer r.server.mx.Unlock()
	if r.server.parts == nil {
		r.server.parts = map[string]report{}
	}
	var deadline *time.Time
	if ttl != nil {
		dl := r.server.now().Add(*ttl)
		deadline = &dl
	}
	r.server.parts[r.name] = report{
		Health:   health,
		Message:  message,
		Deadline: deadline,
	}
	return deadline
}

/*
Retry keeps a background task running with backoff.

	app.Background("consumer", func(ctx context.Context, hr *setup.HealthReporter) error {
		return hr.Retry(ctx, func() error {
			stream, err := connect(ctx)
			if err != nil {
				return err
			}
			hr.ReportReady("receiving")
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-stream:
					handle(ev)
				}
			}
		})
	})

Connecting is retried with backoff until fn returns a Permanent error or the
context is done. ReportReady resets the backoff, so a healthy connection heals
the task.
*/
func (r *HealthReporter) Retry(ctx context.Context, fn func() error) error {
	bo := r.backoff
	for {
		err := fn()
		select {
		case <-ctx.Done():
			return err
		default:
		}
		if err != nil {
			var perr *backoff.PermanentError
			if errors.As(err, &perr) {
				return perr.Unwrap()
			}
			r.ReportHealth(HealthBackoff, err.Error())
		} else {
			r.ReportHealth(HealthBackoff, "")
		}
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(next):
			continue
		}
	}
}

// HealthServer collects the reports of all background tasks.
type HealthServer struct {
	parts          map[string]report
	mx             sync.Mutex
	BackOffFactory func() backoff.BackOff
	Clock          func() time.Time
}

func (h *HealthServer) IsReady(name string) bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.parts == nil {
		return false
	}
	report := h.parts[name]
	return report.isReady(h.now())
}

// AllReady is true if every reporter is ready. It is true without reporters.
func (h *HealthServer) AllReady() bool {
	now := h.now()
	for _, r := range h.reports() {
		if !r.isReady(now) {
			return false
		}
	}
	return true
}

func (h *HealthServer) reports() map[string]report {
	h.mx.Lock()
	defer h.mx.Unlock()
	result := make(map[string]report, len(h.parts))
	for k, v := range h.parts {
		result[k] = v
	}
	return result
}

func (h *HealthServer) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func (h *HealthServer) Reporter(name string) *HealthReporter {
	var bo backoff.BackOff
	if h.BackOffFactory != nil {
		bo = h.BackOffFactory()
	} else {
		bo = backoff.NewExponentialBackOff()
	}
	r := &HealthReporter{
		server:  h,
		name:    name,
		backoff: bo,
	}
	r.ReportHealth(HealthStarting, "starting")
	return r
}

func Permanent(err error) error {
	return backoff.Permanent(err)
}
