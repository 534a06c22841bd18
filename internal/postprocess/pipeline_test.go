package postprocess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
)

type fakeProcessor struct {
	name      string
	priority  int
	mode      Mode
	shouldRun bool
	content   string
	err       error
	onRun     func()
}

func (f *fakeProcessor) Name() string     { return f.name }
func (f *fakeProcessor) Priority() int    { return f.priority }
func (f *fakeProcessor) Mode() Mode       { return f.mode }
func (f *fakeProcessor) ShouldRun(context.Context, *Context) bool { return f.shouldRun }
func (f *fakeProcessor) Process(_ context.Context, _ *Context, content string) (Outcome, error) {
	if f.onRun != nil {
		f.onRun()
	}
	if f.err != nil {
		return Outcome{}, f.err
	}
	out := f.content
	if out == "" {
		out = content
	}
	return Outcome{Content: out, Message: "ok"}, nil
}

func TestRunOrdersByPriorityAscending(t *testing.T) {
	pl := New(nil)
	var order []string
	var mu sync.Mutex
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	pl.Register(&fakeProcessor{name: "b", priority: 2, mode: Sync, shouldRun: true, onRun: record("b")}, false)
	pl.Register(&fakeProcessor{name: "a", priority: 1, mode: Sync, shouldRun: true, onRun: record("a")}, false)

	_, _ = pl.Run(context.Background(), &Context{TaskID: "t1"}, "content")

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected a before b, got %v", order)
	}
}

func TestRunSkipsWhenShouldRunFalse(t *testing.T) {
	pl := New(nil)
	pl.Register(&fakeProcessor{name: "skip-me", priority: 1, mode: Sync, shouldRun: false}, false)

	_, summary := pl.Run(context.Background(), &Context{TaskID: "t1"}, "content")
	if len(summary.Ran) != 0 || len(summary.Skipped) != 1 {
		t.Fatalf("expected the processor to be skipped, got %+v", summary)
	}
}

func TestSyncFailureStopsChainWhenStopOnError(t *testing.T) {
	pl := New(nil)
	pl.Register(&fakeProcessor{name: "first", priority: 1, mode: Sync, shouldRun: true, err: errors.New("boom")}, true)
	pl.Register(&fakeProcessor{name: "second", priority: 2, mode: Sync, shouldRun: true, content: "should not run"}, false)

	content, summary := pl.Run(context.Background(), &Context{TaskID: "t1"}, "original")
	if content != "original" {
		t.Fatalf("expected the last good content preserved, got %q", content)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "first" {
		t.Fatalf("expected first to be recorded as failed, got %+v", summary)
	}
	if len(summary.Ran) != 0 {
		t.Fatalf("expected the chain to stop before second ran, got %+v", summary.Ran)
	}
}

func TestSyncFailureContinuesWithoutStopOnError(t *testing.T) {
	pl := New(nil)
	pl.Register(&fakeProcessor{name: "first", priority: 1, mode: Sync, shouldRun: true, err: errors.New("boom")}, false)
	pl.Register(&fakeProcessor{name: "second", priority: 2, mode: Sync, shouldRun: true, content: "rewritten"}, false)

	content, summary := pl.Run(context.Background(), &Context{TaskID: "t1"}, "original")
	if content != "rewritten" {
		t.Fatalf("expected second's rewrite to apply, got %q", content)
	}
	if len(summary.Ran) != 1 || summary.Ran[0] != "second" {
		t.Fatalf("expected second to have run, got %+v", summary)
	}
}

func TestFireAndForgetNeverBlocksOrFailsThePipeline(t *testing.T) {
	pl := New(nil)
	started := make(chan struct{})
	pl.Register(&fakeProcessor{
		name: "async", priority: 1, mode: FireAndForget, shouldRun: true,
		onRun: func() {
			close(started)
			panic("a panic in a fire-and-forget processor must not crash the pipeline")
		},
	}, false)

	content, summary := pl.Run(context.Background(), &Context{TaskID: "t1"}, "original")
	if content != "original" {
		t.Fatalf("fire-and-forget must not change the rolling content synchronously, got %q", content)
	}
	if len(summary.Ran) != 1 || summary.Ran[0] != "async" {
		t.Fatalf("expected async to be recorded as ran (launched), got %+v", summary)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected the fire-and-forget processor to have started")
	}
}

func TestFireAndForgetRunsOnASwappedAntsPool(t *testing.T) {
	antsPool, err := ants.NewPool(2)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	defer antsPool.Release()

	pl := New(nil)
	pl.SetPool(PoolOfAnts(antsPool))

	started := make(chan struct{})
	pl.Register(&fakeProcessor{
		name: "async-ants", priority: 1, mode: FireAndForget, shouldRun: true,
		onRun: func() { close(started) },
	}, false)

	_, summary := pl.Run(context.Background(), &Context{TaskID: "t1"}, "original")
	if len(summary.Ran) != 1 || summary.Ran[0] != "async-ants" {
		t.Fatalf("expected async-ants to be recorded as ran, got %+v", summary)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected the processor to run on the ants-backed pool")
	}
}
