package calltrace

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// fakeClock is the part of clockz's fake clock the tests drive.
type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

// lineSink records every line it receives.
type lineSink struct {
	infos  []string
	errors []string
	mu     sync.Mutex
}

func (s *lineSink) Info(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, line)
}

func (s *lineSink) Error(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, line)
}

func (s *lineSink) Infos() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.infos...)
}

func (s *lineSink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// seqIDs returns a generator yielding id00001, id00002, ...
func seqIDs() IDGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id%05d", n.Add(1))
	}
}

// newTestTracer returns a tracer with a fake clock, sequential ids, no id
// pool and a recording sink.
func newTestTracer(t *testing.T) (*Tracer, *lineSink, fakeClock) {
	t.Helper()
	sink := &lineSink{}
	clock := clockz.NewFakeClock()
	tracer := New(
		WithSink(sink),
		WithClock(clock),
		WithIDGenerator(seqIDs()),
		WithIDPoolSize(0),
	)
	t.Cleanup(tracer.Close)
	return tracer, sink, clock
}

func equalLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d lines, got %d:\n%q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
