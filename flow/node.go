// Package flow provides a small, composable pipeline framework used to express
// multi-stage processing as a chain of typed nodes instead of hand-rolled
// goroutine bookkeeping.
package flow

import "context"

// Node is a single processing unit that transforms an input into an output.
// Implementations may be pure functions, I/O-bound calls, or compositions of
// other nodes (Flow, Parallel, Branch all implement Node themselves).
type Node[I any, O any] interface {
	Run(ctx context.Context, input I) (O, error)
}

// Processor adapts a plain function to the Node interface. It is the
// building block every stage of a pipeline is ultimately expressed with.
type Processor[I any, O any] func(ctx context.Context, input I) (O, error)

// Run implements Node for Processor.
func (p Processor[I, O]) Run(ctx context.Context, input I) (O, error) {
	return p(ctx, input)
}

// Middleware wraps a Node with additional behavior (logging, timing,
// recovery) while preserving its input/output types.
type Middleware[I any, O any] func(next Node[I, O]) Node[I, O]

// Wrap applies middlewares to a node in order, so the first middleware in
// the list is the outermost wrapper.
func Wrap[I any, O any](node Node[I, O], middlewares ...Middleware[I, O]) Node[I, O] {
	for i := len(middlewares) - 1; i >= 0; i-- {
		node = middlewares[i](node)
	}
	return node
}
