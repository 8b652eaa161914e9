package calltrace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// SpanHandler is called when a span completes.
type SpanHandler func(record Record)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer writes one line per span start and completion, indenting nested
// spans by their level. Safe for concurrent use by multiple goroutines: trace
// state lives in the contexts returned by Begin, not in the Tracer.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers       []handlerEntry
	panicHook      func(handlerID uint64, r interface{})
	workers        *workerPool
	store          *Store
	idPool         *IDPool
	sink           Sink
	clock          clockz.Clock
	idGen          IDGenerator
	idPoolSize     int
	handlersLock   sync.RWMutex
	idPoolOnce     sync.Once
	nextID         atomic.Uint64
	droppedRecords atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock and a console sink on stdout unless options say otherwise.
func New(opts ...Option) *Tracer {
	o := applyOptions(opts)
	t := &Tracer{
		handlers:   make([]handlerEntry, 0),
		sink:       o.sink,
		clock:      o.clock,
		idGen:      o.idGen,
		idPoolSize: o.idPoolSize,
	}
	t.store = NewStore(t.nextRootID)
	return t
}

// Store returns the store that derives the tracer's execution contexts.
func (t *Tracer) Store() *Store { return t.store }

// Fork returns a context for continuing the current trace in a new goroutine.
// See Store.Fork.
func (t *Tracer) Fork(ctx context.Context) context.Context {
	return t.store.Fork(ctx)
}

// ensureIDPool initializes the ID pool if not already created.
func (t *Tracer) ensureIDPool() {
	t.idPoolOnce.Do(func() {
		if t.idPoolSize > 0 {
			t.idPool = NewIDPool(t.idPoolSize, t.idGen)
		}
	})
}

func (t *Tracer) nextRootID() string {
	t.ensureIDPool()
	if t.idPool == nil {
		return t.idGen()
	}
	return t.idPool.Get()
}

// Begin opens a span and writes its start line. The returned context carries
// the span and must be passed to nested operations.
// The returned Status must be completed with End or Exception.
func (t *Tracer) Begin(ctx context.Context, message string) (context.Context, *Status) {
	ctx, f := t.store.enter(ctx)
	status := &Status{
		frame:   f,
		traceID: f.id,
		start:   t.clock.Now(),
		message: message,
	}
	t.sink.Info(startLine(f.id, message))
	return ctx, status
}

// End completes a span normally. Equivalent to Exception(status, nil).
func (t *Tracer) End(status *Status) error {
	return t.Exception(status, nil)
}

// Exception completes a span, writing an error line if err is non-nil.
// The traced error is only observed; the caller still owns it. The returned
// error reports protocol violations only: ErrNilStatus, ErrNoTraceInProgress
// for a status completed twice, ErrOutOfOrder for a span with open children.
func (t *Tracer) Exception(status *Status, err error) error {
	if status == nil {
		t.protocolError(nil, ErrNilStatus)
		return ErrNilStatus
	}
	if status.frame == nil {
		perr := fmt.Errorf("%w: status not begun by this tracer", ErrNoTraceInProgress)
		t.protocolError(status, perr)
		return perr
	}
	if perr := status.frame.close(); perr != nil {
		if errors.Is(perr, ErrNoTraceInProgress) {
			perr = fmt.Errorf("%w: status already completed", perr)
		}
		t.protocolError(status, perr)
		return perr
	}
	status.consumed.Store(true)

	elapsed := t.clock.Now().Sub(status.start)
	t.sink.Info(endLine(status.traceID, status.message, elapsed, err))

	t.executeHandlers(Record{
		TraceID:   status.traceID.id,
		Level:     status.traceID.level,
		Message:   status.message,
		StartTime: status.start,
		Duration:  elapsed,
		Err:       err,
	})
	return nil
}

// Trace runs fn inside a span, completing it on every exit path. A panic in
// fn is recorded as an exception and re-raised; runtime.Goexit is recorded
// as ErrGoexit. fn's error is returned unchanged, joined with a protocol
// error if completion fails.
func (t *Tracer) Trace(ctx context.Context, message string, fn func(context.Context) error) error {
	ctx, status := t.Begin(ctx, message)
	return runScoped(t, ctx, status, fn)
}

func runScoped(lt LogTrace, ctx context.Context, status *Status, fn func(context.Context) error) (err error) {
	returned := false
	defer func() {
		if returned {
			return
		}
		if r := recover(); r != nil {
			_ = lt.Exception(status, &PanicError{Value: r})
			panic(r)
		}
		// fn called runtime.Goexit.
		_ = lt.Exception(status, ErrGoexit)
	}()

	err = fn(ctx)
	returned = true

	var cerr error
	if err != nil {
		cerr = lt.Exception(status, err)
	} else {
		cerr = lt.End(status)
	}
	if cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// PanicError is what Trace records when the traced function panics.
type PanicError struct {
	Value interface{}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func (t *Tracer) protocolError(status *Status, err error) {
	if status == nil {
		t.sink.Error(err.Error())
		return
	}
	t.sink.Error("[" + status.traceID.id + "] " + status.message + " err=" + err.Error())
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(record Record) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, record)
				})
			} else {
				go t.safeCall(entry, record)
			}
		} else {
			t.safeCall(h, record)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, record Record) {
	defer func() {
		if r := recover(); r != nil {
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(record)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("calltrace: workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("calltrace: queueSize must be > 0")
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	if t.workers != nil {
		return errors.New("calltrace: worker pool already enabled")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedRecords,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedRecords returns the number of records dropped due to a full worker queue.
func (t *Tracer) DroppedRecords() uint64 {
	return t.droppedRecords.Load()
}

// Close shuts down the tracer's background goroutines. Begin and End keep
// working after Close; completed spans are no longer handed to handlers.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	// Prevent the pool from starting after Close.
	t.idPoolOnce.Do(func() {})
	if t.idPool != nil {
		t.idPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
