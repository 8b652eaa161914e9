package calltrace

import (
	"context"
	"fmt"

	"github.com/zoobzio/clockz"
)

// Stateless is the baseline tracer with no shared state: every Begin starts a
// new root at level 0, whatever the caller's context holds. Nested calls are
// not correlated. It needs no Store and no Close.
type Stateless struct {
	sink  Sink
	clock clockz.Clock
	idGen IDGenerator
}

// NewStateless creates a stateless tracer. WithIDPoolSize is ignored.
func NewStateless(opts ...Option) *Stateless {
	o := applyOptions(opts)
	return &Stateless{
		sink:  o.sink,
		clock: o.clock,
		idGen: o.idGen,
	}
}

// Begin writes a root start line. ctx is returned unchanged.
func (s *Stateless) Begin(ctx context.Context, message string) (context.Context, *Status) {
	id := NewRootID(s.idGen)
	status := &Status{
		traceID: id,
		start:   s.clock.Now(),
		message: message,
	}
	s.sink.Info(startLine(id, message))
	return ctx, status
}

// End completes a span normally.
func (s *Stateless) End(status *Status) error {
	return s.Exception(status, nil)
}

// Exception completes a span, writing an error line if err is non-nil.
func (s *Stateless) Exception(status *Status, err error) error {
	if status == nil {
		s.sink.Error(ErrNilStatus.Error())
		return ErrNilStatus
	}
	if !status.consumed.CompareAndSwap(false, true) {
		perr := fmt.Errorf("%w: status already completed", ErrNoTraceInProgress)
		s.sink.Error("[" + status.traceID.id + "] " + status.message + " err=" + perr.Error())
		return perr
	}
	s.sink.Info(endLine(status.traceID, status.message, s.clock.Now().Sub(status.start), err))
	return nil
}

// Trace runs fn inside a span, completing it on every exit path.
func (s *Stateless) Trace(ctx context.Context, message string, fn func(context.Context) error) error {
	ctx, status := s.Begin(ctx, message)
	return runScoped(s, ctx, status, fn)
}
