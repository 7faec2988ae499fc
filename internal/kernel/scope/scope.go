// Package scope tracks which process a kernel call runs on behalf of.
//
// The scope is a stack of processes carried in a context.Context. Pushing
// derives a new context and never mutates the caller's, so a scope ends
// when the derived context goes out of use, including when the code running
// inside it panics.
package scope

import (
	"context"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
)

type frame struct {
	process *object.ProcessDispatcher
	parent  *frame
	depth   int
}

type ctxKey struct{}

func top(ctx context.Context) *frame {
	f, _ := ctx.Value(ctxKey{}).(*frame)
	return f
}

// With returns a context whose current process is p.
func With(ctx context.Context, p *object.ProcessDispatcher) context.Context {
	parent := top(ctx)
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return context.WithValue(ctx, ctxKey{}, &frame{process: p, parent: parent, depth: depth})
}

// Run calls fn with p pushed on the scope stack. A panic in fn propagates;
// the caller's ctx still names its own process afterwards.
func Run(ctx context.Context, p *object.ProcessDispatcher, fn func(ctx context.Context) error) error {
	return fn(With(ctx, p))
}

// Current returns the process at the top of the stack. Kernel entry points
// must only be reached from inside a scope, so an empty stack panics.
func Current(ctx context.Context) *object.ProcessDispatcher {
	f := top(ctx)
	if f == nil {
		panic("scope: no current process")
	}
	return f.process
}

// Lookup is Current without the panic.
func Lookup(ctx context.Context) (*object.ProcessDispatcher, bool) {
	f := top(ctx)
	if f == nil {
		return nil, false
	}
	return f.process, true
}

// Depth is the number of nested scopes in ctx.
func Depth(ctx context.Context) int {
	if f := top(ctx); f != nil {
		return f.depth
	}
	return 0
}

// Stack lists the scoped processes, innermost first.
func Stack(ctx context.Context) []*object.ProcessDispatcher {
	var out []*object.ProcessDispatcher
	for f := top(ctx); f != nil; f = f.parent {
		out = append(out, f.process)
	}
	return out
}
