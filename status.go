package calltrace

import (
	"sync/atomic"
	"time"
)

// Status is an in-flight span returned by Begin and consumed by End or Exception.
// It belongs to the caller until it is completed; the tracer keeps no reference.
type Status struct {
	frame    *frame
	start    time.Time
	message  string
	traceID  TraceID
	consumed atomic.Bool
}

// TraceID returns the TraceID the span was entered with.
func (s *Status) TraceID() TraceID { return s.traceID }

// StartTime returns when the span began, by the tracer's clock.
func (s *Status) StartTime() time.Time { return s.start }

// Message returns the message given to Begin.
func (s *Status) Message() string { return s.message }

// Done reports whether the span has been completed.
func (s *Status) Done() bool { return s.consumed.Load() }

// Record describes a completed span. It is delivered to span handlers.
type Record struct {
	StartTime time.Time     `json:"start_time"`
	Err       error         `json:"-"`
	TraceID   string        `json:"trace_id"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Level     int           `json:"level"`
}

// Failed reports whether the span ended through Exception with an error.
func (r Record) Failed() bool { return r.Err != nil }
