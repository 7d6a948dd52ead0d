// Copyright 2024 The opspulse-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package supervisor provides an OTP-style supervisor for the gateway's
// long-running loops (liveness monitor, per-topic fan-out schedulers). A
// panicking loop is recovered and restarted according to its strategy, so
// one misbehaving topic generator cannot take the rest of the gateway down.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opspulse/opspulse-go/pkg/metrics"
)

// Runner is a long-running task: it blocks until it finishes or its context
// is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// RestartStrategy defines the restart behavior for a supervised child.
type RestartStrategy int

const (
	// RestartPermanent indicates that the child should always be restarted.
	RestartPermanent RestartStrategy = iota
	// RestartTransient indicates that the child should be restarted only
	// if it terminates abnormally (with an error or a panic).
	RestartTransient
	// RestartTemporary indicates that the child should never be restarted.
	RestartTemporary
)

// Spec defines one supervised child.
type Spec struct {
	// ID is a unique identifier for the child, used for logging and the
	// restart metric.
	ID string
	// Runner is the task to supervise.
	Runner Runner
	// Restart defines the restart strategy for this child.
	Restart RestartStrategy
	// RestartDelay is the pause before a restart; it defaults to one
	// second to prevent rapid-fire restart loops.
	RestartDelay time.Duration
}

// Supervisor defines the interface for a supervisor process.
type Supervisor interface {
	// Start begins supervision of a set of children. Non-blocking.
	Start(ctx context.Context, specs []Spec) error
	// StartChild starts and supervises a single child dynamically.
	StartChild(ctx context.Context, spec Spec)
}

// OneForOneSupervisor implements a one-for-one strategy: when a child
// terminates, only that child is restarted.
type OneForOneSupervisor struct{}

// NewOneForOneSupervisor creates a new one-for-one supervisor.
func NewOneForOneSupervisor() *OneForOneSupervisor {
	return &OneForOneSupervisor{}
}

// Start launches the initial set of supervised children. Non-blocking.
func (s *OneForOneSupervisor) Start(ctx context.Context, specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no child specs provided")
	}
	for _, spec := range specs {
		s.StartChild(ctx, spec)
	}
	return nil
}

// StartChild launches and monitors a single child in its own goroutine.
func (s *OneForOneSupervisor) StartChild(ctx context.Context, spec Spec) {
	childCtx, cancel := context.WithCancel(ctx)
	go s.monitorChild(childCtx, cancel, spec)
}

// monitorChild runs the child, recovers panics, and applies the restart
// strategy on termination.
func (s *OneForOneSupervisor) monitorChild(ctx context.Context, cancel context.CancelFunc, spec Spec) {
	defer cancel()

	delay := spec.RestartDelay
	if delay <= 0 {
		delay = time.Second
	}

	for {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("runner %s panicked: %v", spec.ID, r)
				}
			}()
			err = spec.Runner.Run(ctx)
		}()

		log.Printf("Runner %s terminated. Reason: %v", spec.ID, err)

		// If the supervisor's context is done, do not restart.
		select {
		case <-ctx.Done():
			log.Printf("Supervisor context is done, not restarting %s.", spec.ID)
			return
		default:
		}

		shouldRestart := false
		switch spec.Restart {
		case RestartPermanent:
			shouldRestart = true
		case RestartTransient:
			shouldRestart = err != nil
		case RestartTemporary:
		}

		if !shouldRestart {
			log.Printf("Runner %s will not be restarted based on strategy.", spec.ID)
			return
		}

		metrics.SupervisorRestartsTotal.WithLabelValues(spec.ID).Inc()
		log.Printf("Restarting runner %s...", spec.ID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
