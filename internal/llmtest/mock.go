// Package llmtest provides the Mock LLMClient backend the test harness
// capability (spec component O) describes: scripted responses, injectable
// transient failures, and call counting, so Workflow and end-to-end tests
// (spec §8 scenarios E1-E6) don't depend on a real provider.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	"github.com/reinvent-insight/orchestrator/internal/llmclient"
)

// Script is one scripted turn: either a canned response, or an error to
// return instead (exactly one of the two is meaningful).
type Script struct {
	Response string
	Err      error
}

// Mock implements llmclient.Backend with a queue of scripted responses per
// call index, falling back to Default once the queue is exhausted.
type Mock struct {
	mu      sync.Mutex
	scripts []Script
	calls   []llmclient.Request
	Default string
	OnCall  func(req llmclient.Request)
}

// NewMock builds a Mock that returns scripts in order, then Default
// thereafter.
func NewMock(scripts ...Script) *Mock {
	return &Mock{scripts: scripts, Default: "{}"}
}

// Generate implements llmclient.Backend.
func (m *Mock) Generate(_ context.Context, req llmclient.Request) (string, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, req)
	var sc Script
	hasScript := idx < len(m.scripts)
	if hasScript {
		sc = m.scripts[idx]
	}
	onCall := m.OnCall
	m.mu.Unlock()

	if onCall != nil {
		onCall(req)
	}
	if !hasScript {
		return m.Default, nil
	}
	if sc.Err != nil {
		return "", sc.Err
	}
	return sc.Response, nil
}

// CallCount returns how many times Generate has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every request seen so far, in order.
func (m *Mock) Calls() []llmclient.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llmclient.Request(nil), m.calls...)
}

// TransientThenSucceed returns a Script that fails with a retryable
// KindLLMTransient error, for use as one of the leading entries in a
// Mock's script queue; a later script with Response set supplies the
// eventual success.
func TransientThenSucceed(msg string) Script {
	return Script{Err: orcherrors.New(orcherrors.KindLLMTransient, fmt.Sprintf("mock transient failure: %s", msg))}
}

// Fatal returns a Script that fails with a non-retryable KindLLMFatal error.
func Fatal(msg string) Script {
	return Script{Err: orcherrors.New(orcherrors.KindLLMFatal, fmt.Sprintf("mock fatal failure: %s", msg))}
}
