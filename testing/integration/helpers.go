package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/calltrace"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so records are visible as soon as End returns.
type MockCollector struct {
	*calltrace.Collector
	t *testing.T
}

// NewMockCollector creates a collector for testing. It is closed on cleanup.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := calltrace.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{Collector: collector, t: t}
}

// WaitForRecords waits for the expected number of records with timeout.
func (m *MockCollector) WaitForRecords(expected int, timeout time.Duration) []calltrace.Record {
	deadline := time.Now().Add(timeout)
	var records []calltrace.Record
	for time.Now().Before(deadline) {
		records = append(records, m.Export()...)
		if len(records) >= expected {
			return records
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.t.Errorf("Timeout waiting for records: expected %d, got %d", expected, len(records))
	return records
}

// LineSink keeps every line it is given, in order.
type LineSink struct {
	infos  []string
	errors []string
	mu     sync.Mutex
}

// Info implements calltrace.Sink.
func (s *LineSink) Info(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, line)
}

// Error implements calltrace.Sink.
func (s *LineSink) Error(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, line)
}

// Lines returns a copy of the info lines.
func (s *LineSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.infos...)
}

// Errors returns a copy of the error lines.
func (s *LineSink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// NewTestTracer returns a tracer writing to a LineSink, closed on cleanup.
func NewTestTracer(t *testing.T, opts ...calltrace.Option) (*calltrace.Tracer, *LineSink) {
	t.Helper()
	sink := &LineSink{}
	tracer := calltrace.New(append([]calltrace.Option{
		calltrace.WithSink(sink),
		calltrace.WithIDPoolSize(0),
	}, opts...)...)
	t.Cleanup(tracer.Close)
	return tracer, sink
}

// TraceLine is one parsed output line.
type TraceLine struct {
	ID      string
	Marker  string
	Message string
	Level   int
}

// ParseLine splits "[id] |   |-->message" into its parts. Level-0 lines
// have no marker.
func ParseLine(line string) (TraceLine, error) {
	if !strings.HasPrefix(line, "[") {
		return TraceLine{}, fmt.Errorf("missing id: %q", line)
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return TraceLine{}, fmt.Errorf("unterminated id: %q", line)
	}
	tl := TraceLine{ID: line[1:end]}
	body := line[end+2:]

	for {
		rest, ok := strings.CutPrefix(body, "|   ")
		if !ok {
			break
		}
		body = rest
		tl.Level++
	}
	for _, marker := range []string{calltrace.StartMarker, calltrace.CompleteMarker, calltrace.ErrorMarker} {
		if m := "|" + marker; strings.HasPrefix(body, m) {
			tl.Marker = marker
			tl.Level++
			body = body[len(m):]
			break
		}
	}
	if tl.Level > 0 && tl.Marker == "" {
		return TraceLine{}, fmt.Errorf("continuation without marker: %q", line)
	}
	tl.Message = body
	return tl, nil
}

// AssertWellNested checks that, per trace id, every start is closed by a
// completion at the same level in LIFO order. It returns the number of spans
// seen per trace id.
func AssertWellNested(t *testing.T, lines []string) map[string]int {
	t.Helper()
	stacks := make(map[string][]TraceLine)
	spans := make(map[string]int)
	for _, line := range lines {
		tl, err := ParseLine(line)
		if err != nil {
			t.Error(err)
			continue
		}
		stack := stacks[tl.ID]

		// A level-0 line opens a trace when nothing is open for its id.
		opening := tl.Marker == calltrace.StartMarker || (tl.Level == 0 && len(stack) == 0)
		if opening {
			if tl.Level != len(stack) {
				t.Errorf("Trace %s: start at level %d with %d open: %q", tl.ID, tl.Level, len(stack), line)
			}
			stacks[tl.ID] = append(stack, tl)
			spans[tl.ID]++
			continue
		}

		if len(stack) == 0 {
			t.Errorf("Trace %s: completion with nothing open: %q", tl.ID, line)
			continue
		}
		top := stack[len(stack)-1]
		if top.Level != tl.Level || !strings.HasPrefix(tl.Message, top.Message+" time=") {
			t.Errorf("Trace %s: %q does not close %q", tl.ID, line, top.Message)
		}
		stacks[tl.ID] = stack[:len(stack)-1]
	}
	for id, stack := range stacks {
		if len(stack) != 0 {
			t.Errorf("Trace %s: %d spans never completed", id, len(stack))
		}
	}
	return spans
}
