// Package feed provides the in-process changefeed the authority server
// publishes committed mutations to. Subscribers (the WebSocket hub, the
// change history endpoint) receive every change at least once and in no
// guaranteed order relative to their own writes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"horizons/internal/remote"
)

var ErrBusClosed = errors.New("changefeed bus is closed")

// Change is a committed mutation flowing through the feed.
type Change struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
	remote.Notification
}

// changeIDCounter is used to generate sequential change IDs.
var changeIDCounter uint64

// NewChange stamps a notification with an id and timestamp.
func NewChange(n remote.Notification) Change {
	seq := atomic.AddUint64(&changeIDCounter, 1)
	return Change{
		ID:           fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq),
		At:           time.Now(),
		Notification: n,
	}
}

// Subscriber is a function that receives changes.
type Subscriber func(Change)

type subscription struct {
	id       int
	entities []remote.Entity
	handler  Subscriber
}

// Bus fans committed changes out to subscribers through a dispatch
// goroutine, keeping a ring buffer of recent changes for replay.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	changeChan  chan Change
	ringBuffer  *RingBuffer
	closed      bool
	done        chan struct{}
}

// NewBus creates a changefeed bus with the given channel and ring size.
func NewBus(bufferSize int) *Bus {
	b := &Bus{
		subscribers: make(map[int]*subscription),
		changeChan:  make(chan Change, bufferSize),
		ringBuffer:  NewRingBuffer(bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case c := <-b.changeChan:
			b.ringBuffer.Add(c)
			b.notifySubscribers(c)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notifySubscribers(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if b.matches(sub, c) {
			go sub.handler(c)
		}
	}
}

func (b *Bus) matches(sub *subscription, c Change) bool {
	if len(sub.entities) == 0 {
		return true
	}
	for _, e := range sub.entities {
		if e == c.Entity {
			return true
		}
	}
	return false
}

// Publish sends a change to the bus. It never blocks; when the channel is
// full the change is dropped.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return
	}

	select {
	case b.changeChan <- c:
	default:
	}
}

// PublishAsync sends a change with context cancellation support.
func (b *Bus) PublishAsync(ctx context.Context, c Change) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}

	select {
	case b.changeChan <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for specific entities (none = all).
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, entities ...remote.Entity) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	b.subscribers[id] = &subscription{
		id:       id,
		entities: entities,
		handler:  handler,
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// SubscribeChan returns a channel that receives changes.
func (b *Bus) SubscribeChan(bufSize int, entities ...remote.Entity) (<-chan Change, func()) {
	ch := make(chan Change, bufSize)

	unsubscribe := b.Subscribe(func(c Change) {
		select {
		case ch <- c:
		default:
		}
	}, entities...)

	return ch, func() {
		unsubscribe()
		close(ch)
	}
}

// History returns recent changes from the ring buffer.
func (b *Bus) History(limit int) []Change {
	return b.ringBuffer.Get(limit)
}

// Close shuts down the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.done)
}

// RingBuffer is a circular buffer of recent changes.
type RingBuffer struct {
	mu      sync.RWMutex
	changes []Change
	size    int
	pos     int
	count   int
}

// NewRingBuffer creates a ring buffer holding up to size changes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		changes: make([]Change, size),
		size:    size,
	}
}

func (r *RingBuffer) Add(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes[r.pos] = c
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *RingBuffer) Get(n int) []Change {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Change, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.changes[(start+i)%r.size]
	}
	return result
}
