package flow

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestFlowRunsStagesInOrder(t *testing.T) {
	f := New("double-then-stringify")
	f = Sequence[int, int](f, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	f = Sequence[int, string](f, func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n), nil
	})

	got, err := Run1[int, string](context.Background(), f, 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "42" {
		t.Fatalf("want %q, got %q", "42", got)
	}
}

func TestFlowStopsAtFirstError(t *testing.T) {
	sentinel := errors.New("boom")
	calledSecond := false

	f := New("fails-fast")
	f = Sequence[int, int](f, func(_ context.Context, n int) (int, error) {
		return 0, sentinel
	})
	f = Sequence[int, int](f, func(_ context.Context, n int) (int, error) {
		calledSecond = true
		return n, nil
	})

	_, err := Run1[int, int](context.Background(), f, 1)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calledSecond {
		t.Fatal("second stage must not run after the first fails")
	}
}

func TestFlowTypeMismatchIsAnError(t *testing.T) {
	f := New("mismatched")
	f = Sequence[string, string](f, func(_ context.Context, s string) (string, error) {
		return s, nil
	})

	_, err := f.Run(context.Background(), 123)
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestFlowRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New("cancelled")
	f = Sequence[int, int](f, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	_, err := f.Run(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
