package flow

import "context"

// step is one link in a Flow's chain. It closes over whatever concrete node
// it wraps so the chain itself can stay untyped between stages.
type step func(ctx context.Context, input any) (any, error)

// Flow is a fluent builder for a sequence of heterogeneously-typed stages.
// Each stage's output becomes the next stage's input, so Flow itself is not
// generic: type safety for an individual stage lives in the Node it wraps,
// and a mismatched chain fails fast at Run time rather than at compile
// time. This trade-off mirrors the teacher's own pipeline builder, which
// favors a single fluent chain over re-deriving generic types at every
// step.
type Flow struct {
	steps []step
	name  string
}

// New starts an empty, named Flow. The name is used only for error context.
func New(name string) *Flow {
	return &Flow{name: name}
}

// Then appends a Node to the chain. The Node's input type must match the
// previous stage's output type (the first stage's input is whatever Run is
// called with); a mismatch surfaces as a runtime type-assertion error.
func Then[I any, O any](f *Flow, node Node[I, O]) *Flow {
	index := len(f.steps)
	f.steps = append(f.steps, func(ctx context.Context, input any) (any, error) {
		typed, ok := input.(I)
		if !ok {
			var zero I
			return nil, &StageError{Flow: f.name, Index: index, Err: newTypeMismatchError(zero, input)}
		}
		out, err := node.Run(ctx, typed)
		if err != nil {
			return nil, &StageError{Flow: f.name, Index: index, Err: err}
		}
		return out, nil
	})
	return f
}

// Sequence appends a single Processor as the next stage. It is sugar over
// Then for the common case of a plain function stage.
func Sequence[I any, O any](f *Flow, fn Processor[I, O]) *Flow {
	return Then[I, O](f, fn)
}

// Run executes every stage in order, threading each stage's output into the
// next. It stops at the first error and returns it wrapped in a StageError
// that identifies which stage failed.
func (f *Flow) Run(ctx context.Context, input any) (any, error) {
	current := input
	for _, s := range f.steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out, err := s(ctx, current)
		if err != nil {
			return nil, err
		}
		current = out
	}
	return current, nil
}

// Run1 is a typed convenience wrapper around Flow.Run for callers that know
// the flow's overall input/output types, avoiding a call-site type
// assertion.
func Run1[I any, O any](ctx context.Context, f *Flow, input I) (O, error) {
	var zero O
	out, err := f.Run(ctx, input)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(O)
	if !ok {
		return zero, newTypeMismatchError(zero, out)
	}
	return typed, nil
}

// StageError identifies which stage of a Flow failed.
type StageError struct {
	Flow  string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	if e.Flow == "" {
		return e.Err.Error()
	}
	return e.Flow + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
