package flow

import (
	"context"
	"errors"
	"testing"
)

func squareNode() Processor[int, int] {
	return func(_ context.Context, n int) (int, error) {
		return n * n, nil
	}
}

func TestParallelAllSucceed(t *testing.T) {
	sumAll := func(results []ItemResult[int]) (int, error) {
		sum := 0
		for _, r := range results {
			sum += r.Value
		}
		return sum, nil
	}

	p := NewParallel[int, int, int](squareNode(), sumAll)
	got, err := p.Run(context.Background(), []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1+4+9+16 {
		t.Fatalf("want %d, got %d", 1+4+9+16, got)
	}
}

func TestParallelPreservesInputOrderInResults(t *testing.T) {
	var orders []int
	collect := func(results []ItemResult[int]) ([]int, error) {
		indexes := make([]int, len(results))
		for i, r := range results {
			indexes[i] = r.Index
		}
		orders = indexes
		return indexes, nil
	}

	p := NewParallel[int, int, []int](squareNode(), collect)
	if _, err := p.Run(context.Background(), []int{10, 20, 30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 3 {
		t.Fatalf("expected 3 results, got %v", orders)
	}
	for i, v := range orders {
		if v != i {
			t.Fatalf("expected results in input order 0..n-1, got %v", orders)
		}
	}
}

func TestParallelPartialSuccessBelowThresholdFails(t *testing.T) {
	flaky := Processor[int, int](func(_ context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, errors.New("even inputs fail")
		}
		return n, nil
	})
	identity := func(results []ItemResult[int]) (int, error) {
		return len(results), nil
	}

	p := NewParallel[int, int, int](flaky, identity).WithRequiredSuccesses(3)
	_, err := p.Run(context.Background(), []int{1, 2, 3, 4})
	if err == nil {
		t.Fatal("expected an error: only 2 of 4 inputs succeed, threshold is 3")
	}
}

func TestParallelPartialSuccessMeetingThresholdSucceeds(t *testing.T) {
	flaky := Processor[int, int](func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errors.New("input 2 fails")
		}
		return n, nil
	})
	countSuccesses := func(results []ItemResult[int]) (int, error) {
		n := 0
		for _, r := range results {
			if r.Err == nil {
				n++
			}
		}
		return n, nil
	}

	p := NewParallel[int, int, int](flaky, countSuccesses).WithRequiredSuccesses(2)
	got, err := p.Run(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Fatalf("want 2 successes, got %d", got)
	}
}

func TestParallelEmptyInputAggregatesWithNil(t *testing.T) {
	sawNil := false
	agg := func(results []ItemResult[int]) (int, error) {
		sawNil = results == nil
		return 0, nil
	}
	p := NewParallel[int, int, int](squareNode(), agg)
	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawNil {
		t.Fatal("expected the aggregator to see a nil result slice for empty input")
	}
}
