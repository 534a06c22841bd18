// Package task implements the TaskManager capability (spec component H):
// the single authoritative in-memory table of task state, with progress
// and log fan-out to subscribers that replay full history on connect.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
)

// EventKind is the tag on a published Event (spec §6 Progress API).
type EventKind string

const (
	EventLog         EventKind = "log"
	EventProgress    EventKind = "progress"
	EventPreAnalysis EventKind = "pre_analysis"
	EventResult      EventKind = "result"
	EventError       EventKind = "error"
)

// Event is one item in a task's append-only history, replayed in full to
// every new subscriber before any future event (spec §5 ordering
// guarantees).
type Event struct {
	Kind        EventKind
	Message     string
	Progress    int
	PreAnalysis map[string]any
	Result      *domain.Result
	ErrorKind   string
	Suggestions []string
}

func (e Event) terminal() bool {
	return e.Kind == EventResult || e.Kind == EventError
}

type entry struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  domain.TaskState
	events []Event
	done   bool

	confirmMu sync.Mutex
	confirmCh chan map[string]any
}

func newEntry(taskID string) *entry {
	e := &entry{
		state: domain.TaskState{TaskID: taskID, Status: domain.StatusQueued, Progress: 0},
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// publish appends ev to history, updates the mirrored log ring (bounded by
// ringSize), and wakes every subscriber blocked on Subscribe's cond.
func (e *entry) publish(ev Event, ringSize int) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	if ev.Message != "" {
		e.state.LogRing = append(e.state.LogRing, ev.Message)
		if ringSize > 0 && len(e.state.LogRing) > ringSize {
			e.state.LogRing = e.state.LogRing[len(e.state.LogRing)-ringSize:]
		}
	}
	if ev.terminal() {
		e.done = true
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Manager is the single authoritative task table.
type Manager struct {
	mu          sync.RWMutex
	tasks       map[string]*entry
	logRingSize int
}

// NewManager builds an empty Manager. logRingSize bounds TaskState.LogRing;
// zero means unbounded.
func NewManager(logRingSize int) *Manager {
	return &Manager{
		tasks:       make(map[string]*entry),
		logRingSize: logRingSize,
	}
}

func (m *Manager) get(taskID string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[taskID]
	return e, ok
}

// Create inserts a new queued TaskState. Must be called before the worker
// picks up the task (spec §4.H).
func (m *Manager) Create(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskID] = newEntry(taskID)
}

// UpdateProgress sets progress to max(current, p), appends msg to the log
// ring, and publishes a progress event. It also advances status to
// processing on first call, since a progress update implies the worker has
// started running it.
func (m *Manager) UpdateProgress(taskID string, p int, msg string) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.mu.Lock()
	if p > e.state.Progress {
		e.state.Progress = p
	}
	if e.state.Status == domain.StatusQueued {
		e.state.Status = domain.StatusProcessing
	}
	progress := e.state.Progress
	e.mu.Unlock()

	e.publish(Event{Kind: EventProgress, Progress: progress, Message: msg}, m.logRingSize)
	return nil
}

// SendLog appends a log line and publishes it, without affecting progress.
func (m *Manager) SendLog(taskID, msg string) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.publish(Event{Kind: EventLog, Message: msg}, m.logRingSize)
	return nil
}

// SendResult marks the task completed and publishes the terminal result
// event. Progress is forced to 100 (spec invariant 5: progress reaches 100
// iff status is completed).
func (m *Manager) SendResult(taskID string, result domain.Result) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.mu.Lock()
	if e.state.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	e.state.Status = domain.StatusCompleted
	e.state.Progress = 100
	e.state.Result = &result
	e.state.DocHash = result.DocHash
	e.state.ResultPath = result.Filename
	e.mu.Unlock()

	e.publish(Event{Kind: EventResult, Result: &result, Message: fmt.Sprintf("completed: %s", result.Title)}, m.logRingSize)
	return nil
}

// SetError marks the task failed and publishes the terminal error event.
// It is safe to call on a task in any non-terminal state; the workflow
// must call this (directly or via a recovered panic) on every code path
// that does not reach SendResult, so no task is ever left in "processing"
// (spec §7 propagation policy).
func (m *Manager) SetError(taskID string, err *orcherrors.Structured) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.mu.Lock()
	if e.state.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	e.state.Status = domain.StatusFailed
	e.state.Error = &domain.SurfacedError{
		Kind:        string(err.Kind),
		Message:     err.Message,
		Suggestions: err.Suggestions,
	}
	e.mu.Unlock()

	e.publish(Event{
		Kind:        EventError,
		Message:     err.Message,
		ErrorKind:   string(err.Kind),
		Suggestions: err.Suggestions,
	}, m.logRingSize)
	return nil
}

// PreAnalysisReady pauses the task at awaiting_confirmation, exposing data
// on the TaskState, and publishes a pre_analysis event.
func (m *Manager) PreAnalysisReady(taskID string, data map[string]any) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.mu.Lock()
	e.state.Status = domain.StatusAwaitingConfirmation
	e.state.PreAnalysisResult = data
	e.confirmMu.Lock()
	e.confirmCh = make(chan map[string]any, 1)
	e.confirmMu.Unlock()
	e.mu.Unlock()

	e.publish(Event{Kind: EventPreAnalysis, PreAnalysis: data, Message: "awaiting confirmation"}, m.logRingSize)
	return nil
}

// AwaitConfirmation blocks until Confirm is called for taskID, returning
// the merged pre-analysis result, or until ctx is cancelled. The Workflow
// calls this right after PreAnalysisReady to pause the pipeline.
func (m *Manager) AwaitConfirmation(ctx context.Context, taskID string) (map[string]any, error) {
	e, ok := m.get(taskID)
	if !ok {
		return nil, fmt.Errorf("task: unknown task %q", taskID)
	}
	e.confirmMu.Lock()
	ch := e.confirmCh
	e.confirmMu.Unlock()
	if ch == nil {
		return nil, fmt.Errorf("task: %q is not awaiting confirmation", taskID)
	}
	select {
	case merged, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("task: %q confirmation already consumed", taskID)
		}
		return merged, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Confirm merges overrides over the stored pre-analysis result, signals the
// waiting workflow, and returns the task to processing. It is a no-op error
// if the task is not currently awaiting_confirmation.
func (m *Manager) Confirm(taskID string, overrides map[string]any) error {
	e, ok := m.get(taskID)
	if !ok {
		return fmt.Errorf("task: unknown task %q", taskID)
	}
	e.mu.Lock()
	if e.state.Status != domain.StatusAwaitingConfirmation {
		e.mu.Unlock()
		return fmt.Errorf("task: %q is not awaiting confirmation", taskID)
	}
	merged := make(map[string]any, len(e.state.PreAnalysisResult)+len(overrides))
	for k, v := range e.state.PreAnalysisResult {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	e.state.PreAnalysisResult = merged
	e.state.Status = domain.StatusProcessing
	e.confirmMu.Lock()
	ch := e.confirmCh
	e.confirmMu.Unlock()
	e.mu.Unlock()

	if ch != nil {
		ch <- merged
		close(ch)
	}
	return nil
}

// Snapshot returns a lock-consistent copy of a task's state for one-shot
// status queries.
func (m *Manager) Snapshot(taskID string) (domain.TaskState, bool) {
	e, ok := m.get(taskID)
	if !ok {
		return domain.TaskState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stateCopy := e.state
	stateCopy.LogRing = append([]string(nil), e.state.LogRing...)
	return stateCopy, true
}

// Subscribe returns a channel of every event published for taskID, starting
// with a replay of full history, followed by live events in order. The
// channel closes once a terminal event has been delivered, or ctx is done.
func (m *Manager) Subscribe(ctx context.Context, taskID string) (<-chan Event, error) {
	e, ok := m.get(taskID)
	if !ok {
		return nil, fmt.Errorf("task: unknown task %q", taskID)
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)

		cancelled := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				e.mu.Lock()
				e.cond.Broadcast()
				e.mu.Unlock()
			case <-cancelled:
			}
		}()
		defer close(cancelled)

		idx := 0
		for {
			e.mu.Lock()
			for idx >= len(e.events) && !e.done && ctx.Err() == nil {
				e.cond.Wait()
			}
			pending := append([]Event(nil), e.events[idx:]...)
			idx = len(e.events)
			done := e.done
			e.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if done || ctx.Err() != nil {
				return
			}
		}
	}()
	return out, nil
}
