package flow

import (
	"context"
	"fmt"
)

// Branch routes an input to one of several Nodes based on a key computed
// from that input, then runs the selected Node. It is used wherever a
// pipeline stage's behavior depends on a runtime classification of its
// input (for example: pre-analysis vs. full generation) rather than a
// fixed chain of stages.
type Branch[I any, O any] struct {
	selector func(I) string
	routes   map[string]Node[I, O]
	fallback Node[I, O]
}

// NewBranch builds a Branch that dispatches using selector to choose a
// route key.
func NewBranch[I any, O any](selector func(I) string) *Branch[I, O] {
	return &Branch[I, O]{
		selector: selector,
		routes:   make(map[string]Node[I, O]),
	}
}

// Route registers the Node to run when selector returns key.
func (b *Branch[I, O]) Route(key string, node Node[I, O]) *Branch[I, O] {
	b.routes[key] = node
	return b
}

// Default registers a Node to run when no route matches the selected key.
// Without one, an unmatched key is an error.
func (b *Branch[I, O]) Default(node Node[I, O]) *Branch[I, O] {
	b.fallback = node
	return b
}

// Run implements Node: it computes the route key, finds the matching Node,
// and delegates to it.
func (b *Branch[I, O]) Run(ctx context.Context, input I) (O, error) {
	var zero O
	key := b.selector(input)
	if node, ok := b.routes[key]; ok {
		return node.Run(ctx, input)
	}
	if b.fallback != nil {
		return b.fallback.Run(ctx, input)
	}
	return zero, fmt.Errorf("flow: no route registered for key %q", key)
}
