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

package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fortio.org/assert"
)

func init() {
	// Keep the grace window short so tests don't take 30 real minutes to
	// observe a run being cleaned up.
	_ = GraceWindow.Set("20ms")
}

func TestStartRunsToCompletionAndCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	h, err := reg.Start(context.Background(), "curl "+srv.URL, Config{
		Users:    2,
		Duration: 40 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	got, ok := reg.Get(h.ID)
	assert.Equal(t, true, ok)
	assert.Equal(t, h.ID, got.ID)

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run controller did not finish within timeout")
	}

	// past the grace window, the registry should have forgotten this run.
	time.Sleep(30 * time.Millisecond)
	_, ok = reg.Get(h.ID)
	assert.Equal(t, false, ok)
}

func TestPauseAndResumeFlipRunState(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	h, err := reg.Start(context.Background(), "curl "+srv.URL, Config{
		Users:    1,
		Duration: 2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	assert.Equal(t, "paused", reg.Pause(h.ID))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "paused", h.State())

	assert.Equal(t, "running", reg.Resume(h.ID))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "running", h.State())

	assert.Equal(t, "stopped", reg.Stop(h.ID))
	// Stop()-while-running is noticed within the controller's 1s tick.
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestStopWhilePausedDoesNotDeadlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	h, err := reg.Start(context.Background(), "curl "+srv.URL, Config{
		Users:    1,
		Duration: 2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	assert.Equal(t, "paused", reg.Pause(h.ID))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "paused", h.State())

	// A stop issued while paused must still unblock the controller, the
	// sampler and every virtual user without waiting for a resume first.
	assert.Equal(t, "stopped", reg.Stop(h.ID))
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run stopped while paused did not finish promptly")
	}
}

func TestControlsOnUnknownRunAreNoOps(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, "stopped", reg.Stop("does-not-exist"))
	assert.Equal(t, "stopped", reg.Pause("does-not-exist"))
	assert.Equal(t, "stopped", reg.Resume("does-not-exist"))
}

func TestStartWithDuplicateIDIsANoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	cfg := Config{Users: 1, Duration: 50 * time.Millisecond, Interval: 10 * time.Millisecond}
	h1, started, err := reg.StartWithID(context.Background(), "run-1", "curl "+srv.URL, cfg)
	assert.NoError(t, err)
	assert.Equal(t, true, started)

	h2, started, err := reg.StartWithID(context.Background(), "run-1", "curl "+srv.URL, cfg)
	assert.NoError(t, err)
	assert.Equal(t, false, started)
	assert.Equal(t, h1, h2)

	select {
	case <-h1.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestPauseAndResumeAfterStopAreNoOps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	h, err := reg.Start(context.Background(), "curl "+srv.URL, Config{
		Users:    1,
		Duration: 2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	assert.Equal(t, "stopped", reg.Stop(h.ID))
	assert.Equal(t, "stopped", reg.Pause(h.ID))
	assert.Equal(t, "stopped", reg.Resume(h.ID))
	assert.Equal(t, "stopped", h.State())
}

func TestColdStartTimeIsCappedAt20Seconds(t *testing.T) {
	assert.Equal(t, 20*time.Second, coldStartTime(10*time.Minute))
	assert.Equal(t, 2*time.Second, coldStartTime(6*time.Second))
}
