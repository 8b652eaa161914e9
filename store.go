package calltrace

import (
	"context"
	"fmt"
	"sync"
)

// frameKeyType is a private type for context keys to avoid collisions.
type frameKeyType string

const (
	frameKey frameKeyType = "calltrace"
)

// frame is one span of an execution context, or the seed a forked context
// continues from. A context carries its frame immutably: id, parent and seed
// never change, and the open/done state is guarded by mu. Contexts holding
// frames are therefore safe to share between goroutines.
type frame struct {
	parent *frame
	id     TraceID
	seed   bool
	mu     sync.Mutex
	open   int // spans begun directly under this one and not yet completed
	done   bool
}

// adopt registers a new child span. It fails once the frame is done.
func (f *frame) adopt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.open++
	return true
}

// close completes the span. A span with open children is out of order and
// is left as it was.
func (f *frame) close() error {
	f.mu.Lock()
	switch {
	case f.done || f.seed:
		f.mu.Unlock()
		return ErrNoTraceInProgress
	case f.open > 0:
		open := f.open
		f.mu.Unlock()
		return fmt.Errorf("%w: %s has %d open spans", ErrOutOfOrder, f.id, open)
	}
	f.done = true
	f.mu.Unlock()

	if f.parent != nil {
		f.parent.release()
	}
	return nil
}

func (f *frame) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open > 0 {
		f.open--
	}
}

func (f *frame) isDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// innermost returns the nearest frame of the chain that is not done, or nil.
// Seeds are never done.
func innermost(f *frame) *frame {
	for ; f != nil; f = f.parent {
		if !f.isDone() {
			return f
		}
	}
	return nil
}

// Store keeps the current TraceID of each execution context.
//
// The execution context is the context.Context chain returned by Enter. Each
// Enter derives a new context; the context passed in is never modified. So a
// context may be handed to any number of goroutines: spans they begin from it
// become siblings, and roots begun from a finished context are unrelated.
type Store struct {
	gen IDGenerator
}

// NewStore creates a store that draws root ids from gen.
// A nil gen uses UUIDPrefixID.
func NewStore(gen IDGenerator) *Store {
	if gen == nil {
		gen = UUIDPrefixID
	}
	return &Store{gen: gen}
}

// Enter opens a span in the execution context of ctx and returns the TraceID
// for it. With nothing open in ctx a new root starts; otherwise the innermost
// open TraceID is derived one level deeper. The returned context carries the
// span and must be passed to nested operations.
func (s *Store) Enter(ctx context.Context) (context.Context, TraceID) {
	ctx, f := s.enter(ctx)
	return ctx, f.id
}

func (s *Store) enter(ctx context.Context) (context.Context, *frame) {
	if ctx == nil {
		ctx = context.Background()
	}
	for p := frameFrom(ctx); p != nil; p = p.parent {
		if p.adopt() {
			child := &frame{parent: p, id: p.id.Deeper()}
			return context.WithValue(ctx, frameKey, child), child
		}
	}
	root := &frame{id: NewRootID(s.gen)}
	return context.WithValue(ctx, frameKey, root), root
}

// Exit completes the innermost open span of ctx and returns its TraceID.
// Returns ErrNoTraceInProgress if nothing is open, ErrOutOfOrder if that span
// still has open children begun from other contexts.
func (*Store) Exit(ctx context.Context) (TraceID, error) {
	f := innermost(frameFrom(ctx))
	if f == nil || f.seed {
		return TraceID{}, ErrNoTraceInProgress
	}
	if err := f.close(); err != nil {
		return TraceID{}, err
	}
	return f.id, nil
}

// Current returns the TraceID of the innermost open span of ctx, if any.
func (*Store) Current(ctx context.Context) (TraceID, bool) {
	f := innermost(frameFrom(ctx))
	if f == nil || f.seed {
		return TraceID{}, false
	}
	return f.id, true
}

// Fork returns a context for work that may outlive the current span, such as
// a goroutine that is not waited for. The first Enter on the returned context
// continues the current TraceID one level deeper, but its spans are detached:
// the parent span can complete while they are still open. Forking a forked
// context with nothing open keeps the inherited TraceID. Forking a context
// with nothing open returns ctx.
func (*Store) Fork(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	f := innermost(frameFrom(ctx))
	if f == nil {
		return ctx
	}
	return context.WithValue(ctx, frameKey, &frame{id: f.id, seed: true})
}

// Reset discards every span still open in ctx's chain, up to a fork seed.
// Statuses of discarded spans complete with ErrNoTraceInProgress.
// It reports whether anything was discarded.
func (*Store) Reset(ctx context.Context) bool {
	discarded := false
	for f := frameFrom(ctx); f != nil && !f.seed; f = f.parent {
		f.mu.Lock()
		if !f.done {
			f.done = true
			discarded = true
		}
		f.open = 0
		f.mu.Unlock()
	}
	return discarded
}

// frameFrom extracts the frame from a context.
// Returns nil if no frame is present.
func frameFrom(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	if f, ok := ctx.Value(frameKey).(*frame); ok {
		return f
	}
	return nil
}
