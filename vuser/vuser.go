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

// Package vuser implements the closed-loop virtual-user task a run
// controller spawns one of per configured user: sleep off its cold-start
// delay, then issue-wait-record-repeat against a RequestTemplate until the
// run stops, honoring pause in between. Failures never abort the loop, they
// become error.<kind>.<first 50 chars of body or message> counters.
package vuser

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fortio.org/log"

	"github.com/fortio/bees/curltemplate"
	"github.com/fortio/bees/latch"
	"github.com/fortio/bees/metrics"
)

const abstractLen = 50

// Task is one virtual user's run loop.
type Task struct {
	ID       int
	Template *curltemplate.RequestTemplate
	Registry *metrics.Registry

	// Running gates the request loop: clear it to pause, set it to
	// (re)start issuing requests.
	Running *latch.Latch
	// Stopping, once set, ends the loop for good after the in-flight
	// request (if any) finishes.
	Stopping *latch.Latch

	StartDelay time.Duration
	// TimeoutOverride takes priority over Template.TimeoutSeconds.
	TimeoutOverride *time.Duration
}

func (t *Task) timeout() time.Duration {
	if t.TimeoutOverride != nil {
		return *t.TimeoutOverride
	}
	if t.Template.TimeoutSeconds != nil {
		return time.Duration(*t.Template.TimeoutSeconds) * time.Second
	}
	return 0
}

// Run drives the loop until Stopping is set or ctx is done. It never
// returns an error: all request failures are folded into counters.
func (t *Task) Run(ctx context.Context) {
	select {
	case <-time.After(t.StartDelay):
	case <-ctx.Done():
		return
	}

	t.Registry.Inc(metrics.User)
	counted := true
	defer func() {
		if counted {
			t.Registry.Dec(metrics.User)
		}
	}()
	for {
		if t.Stopping.IsSet() {
			return
		}
		if !t.Running.IsSet() {
			t.Registry.Dec(metrics.User)
			counted = false
			if err := latch.WaitEither(ctx, t.Running, t.Stopping); err != nil {
				return
			}
			if t.Stopping.IsSet() {
				return
			}
			select {
			case <-time.After(t.StartDelay):
			case <-ctx.Done():
				return
			}
			t.Registry.Inc(metrics.User)
			counted = true
		}
		t.doOneRequest(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

func (t *Task) doOneRequest(ctx context.Context) {
	t.Registry.Inc(metrics.RequestActive)
	defer t.Registry.Dec(metrics.RequestActive)

	reqCtx := ctx
	var cancel context.CancelFunc
	if to := t.timeout(); to > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, to)
		defer cancel()
	}

	req, err := t.buildRequest(reqCtx)
	if err != nil {
		t.recordError("RequestBuildError", err.Error())
		return
	}

	client := &http.Client{
		Jar: nil, // discard cookies: fresh jar-less client per request
	}
	if strings.EqualFold(req.URL.Scheme, "https") {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !t.Template.VerifyTLS}, //nolint:gosec // opt-in via -k
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// run shutdown, not a target failure
			return
		}
		t.recordError(errKind(err), err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	respAbstract := abstract(body)

	elapsed := time.Since(start).Seconds()
	t.Registry.Observe(elapsed)
	t.Registry.Inc(metrics.RequestTotal)

	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		t.Registry.Inc(metrics.RequestError)
		t.Registry.Inc(metrics.ErrorPrefix + strconv.Itoa(resp.StatusCode) + "." + respAbstract)
	}
}

func (t *Task) buildRequest(ctx context.Context) (*http.Request, error) {
	tmpl := t.Template
	var body io.Reader
	if tmpl.Body != "" {
		body = strings.NewReader(tmpl.Body)
	}
	req, err := http.NewRequestWithContext(ctx, tmpl.Method, tmpl.URL, body)
	if err != nil {
		return nil, err
	}
	for _, h := range tmpl.Headers {
		req.Header.Set(h.Key, h.Value)
	}
	for _, c := range tmpl.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Key, Value: c.Value})
	}
	if tmpl.Username != "" {
		req.SetBasicAuth(tmpl.Username, tmpl.Password)
	}
	return req, nil
}

func (t *Task) recordError(kind, msg string) {
	log.LogVf("vuser %d: %s: %s", t.ID, kind, msg)
	t.Registry.Inc(metrics.RequestError)
	t.Registry.Inc(metrics.ErrorPrefix + kind + "." + abstract([]byte(msg)))
}

// abstract keeps the first 50 characters, replacing invalid UTF-8 bytes
// rather than slicing mid-rune.
func abstract(b []byte) string {
	r := []rune(string(b))
	if len(r) > abstractLen {
		r = r[:abstractLen]
	}
	return string(r)
}

func errKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "Timeout"
	}
	return "ConnectionError"
}
