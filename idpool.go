package calltrace

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces root trace ids.
type IDGenerator func() string

// idLength is the length of generated root ids.
const idLength = 8

const alnum = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// UUIDPrefixID returns the first eight characters of a random UUID.
func UUIDPrefixID() string {
	return uuid.NewString()[:idLength]
}

// RandomAlnumID returns an eight character alphanumeric token from crypto/rand.
// Falls back to UUIDPrefixID if crypto/rand fails.
func RandomAlnumID() string {
	var b [idLength]byte
	if _, err := rand.Read(b[:]); err != nil {
		return UUIDPrefixID()
	}
	for i := range b {
		b[i] = alnum[int(b[i])%len(alnum)]
	}
	return string(b[:])
}

// IDPool manages a pool of pre-generated ids to take generation off the Begin path.
type IDPool struct {
	factory IDGenerator
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory IDGenerator) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	// Start background refill goroutine.
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly.
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.ids <- p.factory():
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close stops the refill goroutine. Get keeps working after Close.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
