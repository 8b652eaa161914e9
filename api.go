// Package calltrace provides minimal call-trace logging for nested operations.
//
// calltrace annotates nested calls with a shared trace ID and a visual nesting
// depth so that log lines written by the layers of one logical operation can be
// correlated and timed. It writes one human-readable line per event and nothing
// else: no sampling, no export, no cross-process propagation.
//
// Core Components:
//   - TraceID: Immutable trace ID plus nesting level.
//   - Status: In-flight span handed from Begin to End.
//   - Store: Derives the execution context holding the current TraceID.
//   - Tracer: Begin/End/Exception and line rendering.
//   - Stateless: Baseline tracer where every Begin is a root.
//
// Basic Usage:
//
//	tracer := calltrace.New() // console lines on stdout
//	defer tracer.Close()
//
// To route lines through an existing logger instead:
//
//	tracer := calltrace.New(calltrace.WithSink(calltrace.NewZapSink(logger)))
//
//	ctx, status := tracer.Begin(ctx, "OrderController.request()")
//	if err := service.Order(ctx, itemID); err != nil {
//		tracer.Exception(status, err)
//		return err
//	}
//	tracer.End(status)
//
// Or with guaranteed release on every exit path:
//
//	err := tracer.Trace(ctx, "OrderService.orderItem()", func(ctx context.Context) error {
//		return repo.Save(ctx, itemID)
//	})
//
// Output:
//
//	[796bccd9] OrderController.request()
//	[796bccd9] |-->OrderService.orderItem()
//	[796bccd9] |   |-->OrderRepository.save()
//	[796bccd9] |   |<--OrderRepository.save() time=1004ms
//	[796bccd9] |<--OrderService.orderItem() time=1014ms
//	[796bccd9] OrderController.request() time=1014ms
//
// Execution Contexts:
//
// Trace state is never kept on the Tracer. Begin returns a new context
// carrying the span; the context passed in is left as it was. Nested calls
// must receive the returned context. Contexts are safe to share: spans begun
// from one context in several goroutines become siblings, and a context whose
// spans have all completed starts a fresh root, so concurrent callers of one
// Tracer cannot corrupt each other's levels or IDs.
//
// A span completes only after every span begun under it. For goroutines that
// may outlive the current span, pass Store.Fork(ctx) (or Tracer.Fork): their
// spans continue the current TraceID but are detached from the parent.
//
// Pairing:
//
// Every Begin must be completed by exactly one End or Exception, innermost
// first. Prefer Trace, which pairs them structurally. Store.Reset discards
// spans left open on a context that is reused.
package calltrace

import "context"

// LogTrace is the surface shared by Tracer and Stateless.
type LogTrace interface {
	Begin(ctx context.Context, message string) (context.Context, *Status)
	End(status *Status) error
	Exception(status *Status, err error) error
	Trace(ctx context.Context, message string, fn func(context.Context) error) error
}

var (
	_ LogTrace = (*Tracer)(nil)
	_ LogTrace = (*Stateless)(nil)
)
