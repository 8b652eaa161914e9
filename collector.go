package calltrace

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers completed span records for batch export.
// Register it with tracer.OnSpanComplete(collector.Collect).
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []Record
	recordsCh    chan Record
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:      name,
		records:   make([]Record, 0, 8),
		recordsCh: make(chan Record, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string { return c.name }

// start runs the collector's main loop, receiving records from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case record := <-c.recordsCh:
					c.buffer(record)
				default:
					return
				}
			}
		case record := <-c.recordsCh:
			c.buffer(record)
		}
	}
}

// Close stops the collector goroutine after draining queued records.
// Records collected after Close are dropped.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect buffers a record with backpressure protection.
// If the internal channel is full, the record is dropped and the drop counter
// is incremented. In sync mode, records are buffered directly.
func (c *Collector) Collect(record Record) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(record)
		return
	}

	select {
	case c.recordsCh <- record:
	default:
		// Channel full - drop record to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

// Export returns all buffered records and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	result := make([]Record, len(c.records))
	copy(result, c.records)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		c.records = make([]Record, 0, cap(c.records)/4)
	} else {
		c.records = c.records[:0]
	}

	return result
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the total number of records dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered records and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
