package flow

import (
	"context"
	"fmt"
	"sync"
)

// ItemResult is one fan-out branch's outcome, tagged with its index in the
// input slice so an aggregator can restore ordering after concurrent
// completion.
type ItemResult[O any] struct {
	Index int
	Value O
	Err   error
}

// Aggregator reduces a Parallel node's per-item results into a single
// output. It runs once every branch has completed, and only when enough
// branches succeeded to meet the node's required-successes threshold.
type Aggregator[O any, A any] func(results []ItemResult[O]) (A, error)

// Parallel fans a slice of inputs out to one Node run per item, each on its
// own goroutine, and fans the results back in through an Aggregator. It is
// built for the Workflow's chapter-expansion stage: some chapters may fail
// without sinking the whole report, as long as enough of them succeed.
type Parallel[I any, O any, A any] struct {
	node      Node[I, O]
	aggregate Aggregator[O, A]

	// required is the minimum number of successful branches needed before
	// the node is considered to have succeeded overall. Zero means "all
	// of them" (the default, set by NewParallel).
	required int
}

// NewParallel builds a Parallel node that requires every branch to succeed.
// Use WithRequiredSuccesses to relax that.
func NewParallel[I any, O any, A any](node Node[I, O], aggregate Aggregator[O, A]) *Parallel[I, O, A] {
	return &Parallel[I, O, A]{node: node, aggregate: aggregate}
}

// WithRequiredSuccesses sets the minimum number of branches that must
// succeed. A value <= 0 restores the "all must succeed" default.
func (p *Parallel[I, O, A]) WithRequiredSuccesses(n int) *Parallel[I, O, A] {
	p.required = n
	return p
}

// Run launches one goroutine per input item, waits for all of them to
// finish, then aggregates. It does not cancel in-flight branches early on
// partial failure: every branch is given the chance to complete so the
// aggregator sees a consistent picture of who succeeded and who didn't.
func (p *Parallel[I, O, A]) Run(ctx context.Context, inputs []I) (A, error) {
	var zero A
	n := len(inputs)
	if n == 0 {
		return p.aggregate(nil)
	}

	results := make([]ItemResult[O], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i, in := range inputs {
		go func(i int, in I) {
			defer wg.Done()
			out, err := p.node.Run(ctx, in)
			results[i] = ItemResult[O]{Index: i, Value: out, Err: err}
		}(i, in)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Err == nil {
			successes++
		}
	}

	required := p.required
	if required <= 0 {
		required = n
	}
	if successes < required {
		return zero, fmt.Errorf("flow: parallel stage needed %d successes, got %d", required, successes)
	}

	return p.aggregate(results)
}
