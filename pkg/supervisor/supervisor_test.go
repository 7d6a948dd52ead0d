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

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRequiresSpecs(t *testing.T) {
	s := NewOneForOneSupervisor()
	assert.Error(t, s.Start(context.Background(), nil))
}

func TestRestartTransientOnError(t *testing.T) {
	s := NewOneForOneSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s.StartChild(ctx, Spec{
		ID: "flaky",
		Runner: RunnerFunc(func(ctx context.Context) error {
			if atomic.AddInt32(&runs, 1) < 3 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return nil
		}),
		Restart:      RestartTransient,
		RestartDelay: 5 * time.Millisecond,
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNoRestartOnCleanExitForTransient(t *testing.T) {
	s := NewOneForOneSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s.StartChild(ctx, Spec{
		ID: "oneshot",
		Runner: RunnerFunc(func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}),
		Restart:      RestartTransient,
		RestartDelay: time.Millisecond,
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestPanicIsRecoveredAndRestarted(t *testing.T) {
	s := NewOneForOneSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s.StartChild(ctx, Spec{
		ID: "panicky",
		Runner: RunnerFunc(func(ctx context.Context) error {
			if atomic.AddInt32(&runs, 1) == 1 {
				panic("kaboom")
			}
			<-ctx.Done()
			return nil
		}),
		Restart:      RestartPermanent,
		RestartDelay: 5 * time.Millisecond,
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestNoRestartAfterContextCancel(t *testing.T) {
	s := NewOneForOneSupervisor()
	ctx, cancel := context.WithCancel(context.Background())

	var runs int32
	started := make(chan struct{}, 1)
	s.StartChild(ctx, Spec{
		ID: "loop",
		Runner: RunnerFunc(func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		}),
		Restart:      RestartPermanent,
		RestartDelay: time.Millisecond,
	})

	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}
