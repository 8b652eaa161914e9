package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/calltrace"
)

// syncBuffer is a bytes.Buffer safe for the concurrent users of a run.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func plainConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sink:\n  kind: stdout\n  encoding: plain\nid_pool_size: 0\n"), 0o600))
	return path
}

func linesByID(out string) map[string][]string {
	byID := make(map[string][]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		end := strings.Index(line, "]")
		if !strings.HasPrefix(line, "[") || end < 0 {
			continue
		}
		byID[line[1:end]] = append(byID[line[1:end]], line)
	}
	return byID
}

func TestOrderControllerSuccess(t *testing.T) {
	var out syncBuffer
	tracer := calltrace.New(
		calltrace.WithSink(calltrace.NewWriterSink(&out, calltrace.EncodingPlain)),
		calltrace.WithIDGenerator(func() string { return "order001" }),
		calltrace.WithIDPoolSize(0),
	)
	defer tracer.Close()

	result, err := newOrderController(tracer, time.Millisecond).request(context.Background(), "itemA")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "[order001] OrderController.request()", lines[0])
	assert.Equal(t, "[order001] |-->OrderService.orderItem()", lines[1])
	assert.Equal(t, "[order001] |   |-->OrderRepository.save()", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "[order001] |   |<--OrderRepository.save() time="))
	assert.True(t, strings.HasPrefix(lines[4], "[order001] |<--OrderService.orderItem() time="))
	assert.True(t, strings.HasPrefix(lines[5], "[order001] OrderController.request() time="))
}

func TestOrderControllerException(t *testing.T) {
	var out syncBuffer
	tracer := calltrace.New(
		calltrace.WithSink(calltrace.NewWriterSink(&out, calltrace.EncodingPlain)),
		calltrace.WithIDPoolSize(0),
	)
	defer tracer.Close()

	_, err := newOrderController(tracer, time.Millisecond).request(context.Background(), failingItem)
	assert.True(t, errors.Is(err, errIllegalItem))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[3], "|   |<X-OrderRepository.save()")
	assert.Contains(t, lines[4], "|<X-OrderService.orderItem()")
	for _, line := range lines[3:] {
		assert.True(t, strings.HasSuffix(line, "ex=illegal item"), line)
	}
}

func TestRunConcurrentUsersAreIsolated(t *testing.T) {
	var out syncBuffer
	code := run([]string{"calltrace-demo", "run",
		"--config", plainConfig(t),
		"--users", "4",
		"--stagger", "1ms",
		"--work", "20ms",
	}, &out)
	require.Equal(t, 0, code)

	byID := linesByID(out.String())
	require.Len(t, byID, 4, "each user gets its own trace id")
	for id, lines := range byID {
		require.Len(t, lines, 6, id)
		levels := []string{"", "|-->", "|   |-->", "|   |<--", "|<--", ""}
		for i, line := range lines {
			body := strings.TrimPrefix(line, "["+id+"] ")
			if levels[i] == "" {
				assert.False(t, strings.HasPrefix(body, "|"), line)
			} else {
				assert.True(t, strings.HasPrefix(body, levels[i]), line)
			}
		}
	}
}

func TestRunStateless(t *testing.T) {
	var out syncBuffer
	code := run([]string{"calltrace-demo", "run",
		"--config", plainConfig(t),
		"--users", "1",
		"--work", "1ms",
		"--stateless",
	}, &out)
	require.Equal(t, 0, code)

	// Every call is its own root: three ids, no indentation.
	byID := linesByID(out.String())
	assert.Len(t, byID, 3)
	assert.NotContains(t, out.String(), "|")
}

func TestRunFailingItem(t *testing.T) {
	var out syncBuffer
	code := run([]string{"calltrace-demo", "run",
		"--config", plainConfig(t),
		"--users", "1",
		"--item", failingItem,
	}, &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "ex=illegal item")
}

func TestRunInvalidUsers(t *testing.T) {
	var out syncBuffer
	code := run([]string{"calltrace-demo", "run", "--users", "0"}, &out)
	assert.Equal(t, 1, code)
}
