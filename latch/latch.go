// Copyright 2017 Fortio Authors
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

// Package latch provides a level-triggered, multi-waiter boolean gate:
// Set()/Clear() flip the level, Wait() blocks until it reads as set.
//
// It's the same "replace the channel to broadcast" trick as
// periodic.Aborter's StopChan in fortio, generalized from Aborter's
// one-shot "stop, once" semantics to a level that can be set and cleared
// repeatedly -- which is what driving pause/resume for a whole run needs.
package latch

import (
	"context"
	"sync"
)

// Latch is a level-triggered gate safe for concurrent Set/Clear/IsSet/Wait
// from many goroutines.
type Latch struct {
	mu   sync.Mutex
	set  bool
	wake chan struct{} // closed and replaced whenever Set raises the level
}

// New returns a Latch initialized to the given level.
func New(initial bool) *Latch {
	return &Latch{set: initial, wake: make(chan struct{})}
}

// Set raises the level, waking every current waiter. A no-op if already set.
func (l *Latch) Set() {
	l.mu.Lock()
	if l.set {
		l.mu.Unlock()
		return
	}
	l.set = true
	old := l.wake
	l.wake = make(chan struct{})
	l.mu.Unlock()
	close(old)
}

// Clear lowers the level. Waiters already blocked in Wait() for "set" stay
// blocked; new Wait(ctx) calls will block until the next Set().
func (l *Latch) Clear() {
	l.mu.Lock()
	l.set = false
	l.mu.Unlock()
}

// IsSet reports the current level.
func (l *Latch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Wait blocks until the latch is set or ctx is done.
func (l *Latch) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.set {
			l.mu.Unlock()
			return nil
		}
		wake := l.wake
		l.mu.Unlock()
		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Latch) snapshot() (bool, chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set, l.wake
}

// WaitEither blocks until a or b is set or ctx is done. It exists because a
// task paused on one latch (Running) must still notice the other (Stopping)
// flipping, so a stop issued mid-pause doesn't deadlock the waiter.
func WaitEither(ctx context.Context, a, b *Latch) error {
	for {
		aSet, aWake := a.snapshot()
		if aSet {
			return nil
		}
		bSet, bWake := b.snapshot()
		if bSet {
			return nil
		}
		select {
		case <-aWake:
		case <-bWake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
