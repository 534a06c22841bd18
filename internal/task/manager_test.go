package task

import (
	"context"
	"testing"
	"time"

	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
)

func drain(t *testing.T, ch <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

func TestProgressIsMonotoneNonDecreasing(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.UpdateProgress("t1", 25, "outline done")
	_ = m.UpdateProgress("t1", 10, "should not regress")
	snap, ok := m.Snapshot("t1")
	if !ok {
		t.Fatal("expected task to exist")
	}
	if snap.Progress != 25 {
		t.Fatalf("expected progress to stay at 25, got %d", snap.Progress)
	}
}

func TestSendResultReachesProgress100AndCompleted(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.UpdateProgress("t1", 90, "assembling")
	_ = m.SendResult("t1", domain.Result{Title: "T", Filename: "t_v1.md", DocHash: "abc12345"})

	snap, _ := m.Snapshot("t1")
	if snap.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %v", snap.Status)
	}
	if snap.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", snap.Progress)
	}
}

func TestSetErrorMarksFailedAndNeverLeavesProcessing(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.UpdateProgress("t1", 50, "working")
	_ = m.SetError("t1", orcherrors.New(orcherrors.KindTimeout, "deadline exceeded"))

	snap, _ := m.Snapshot("t1")
	if snap.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %v", snap.Status)
	}
	if snap.Error == nil || snap.Error.Kind != string(orcherrors.KindTimeout) {
		t.Fatalf("expected a timeout error recorded, got %+v", snap.Error)
	}
}

func TestSubscribeReplaysFullHistoryThenLiveEvents(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.SendLog("t1", "first")
	_ = m.UpdateProgress("t1", 25, "outline done")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := m.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = m.SendResult("t1", domain.Result{Title: "T", Filename: "t_v1.md", DocHash: "abc12345"})

	events := drain(t, ch, time.Second)
	if len(events) < 3 {
		t.Fatalf("expected at least 3 events (replay + live), got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventLog || events[0].Message != "first" {
		t.Fatalf("expected replay to start with the first log event, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Kind != EventResult {
		t.Fatalf("expected the channel to end on the terminal result event, got %+v", last)
	}
}

func TestTwoSubscribersSeePrefixConsistentHistory(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.SendLog("t1", "a")
	_ = m.SendLog("t1", "b")

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	early, _ := m.Subscribe(ctx1, "t1")
	earlyEvents := drain(t, early, 200*time.Millisecond)

	_ = m.SendLog("t1", "c")
	_ = m.SendResult("t1", domain.Result{Title: "T", Filename: "f.md", DocHash: "deadbeef"})

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	late, _ := m.Subscribe(ctx2, "t1")
	lateEvents := drain(t, late, time.Second)

	if len(earlyEvents) > len(lateEvents) {
		t.Fatalf("early subscriber saw more events than the late one")
	}
	for i, ev := range earlyEvents {
		if ev.Message != lateEvents[i].Message || ev.Kind != lateEvents[i].Kind {
			t.Fatalf("prefix mismatch at index %d: %+v vs %+v", i, ev, lateEvents[i])
		}
	}
}

func TestPreAnalysisAndConfirmResumesWorkflow(t *testing.T) {
	m := NewManager(100)
	m.Create("t1")
	_ = m.PreAnalysisReady("t1", map[string]any{"content_type": "talk"})

	snap, _ := m.Snapshot("t1")
	if snap.Status != domain.StatusAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %v", snap.Status)
	}

	resultCh := make(chan map[string]any, 1)
	go func() {
		merged, err := m.AwaitConfirmation(context.Background(), "t1")
		if err != nil {
			t.Error(err)
			return
		}
		resultCh <- merged
	}()

	time.Sleep(10 * time.Millisecond)
	if err := m.Confirm("t1", map[string]any{"audience": "engineers"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case merged := <-resultCh:
		if merged["content_type"] != "talk" || merged["audience"] != "engineers" {
			t.Fatalf("expected merged overrides, got %+v", merged)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitConfirmation did not unblock after Confirm")
	}

	snap, _ = m.Snapshot("t1")
	if snap.Status != domain.StatusProcessing {
		t.Fatalf("expected processing after confirm, got %v", snap.Status)
	}
}
