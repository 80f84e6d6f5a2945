// Package dispatch delivers bridge notifications to UI subscribers.
//
// Publishers never talk to subscribers directly. Notifications go through a
// bounded queue drained by one goroutine, which keeps a replay buffer for
// late subscribers and fans each notification out without blocking.
package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/stream"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("dispatcher closed")

// Defaults
const (
	DefaultQueueSize      = 256
	DefaultReplaySize     = 1000
	DefaultSubscriberSize = 256
)

// Config sizes the dispatcher buffers.
type Config struct {
	QueueSize      int
	ReplaySize     int
	SubscriberSize int
	Log            *logging.Logger
}

// Dispatcher implements stream.Sink.
type Dispatcher struct {
	log     *logging.Logger
	subSize int

	mu     sync.Mutex // serializes Publish and Close
	queue  chan stream.Notification
	next   int64
	closed bool
	done   chan struct{}

	fanMu sync.Mutex
	ring  []stream.Notification
	head  int
	count int
	subs  map[*Subscription]struct{}
}

// Subscription is one UI listener.
type Subscription struct {
	C       <-chan stream.Notification
	ch      chan stream.Notification
	dropped atomic.Int64
}

// Dropped reports how many notifications this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// New starts a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = DefaultReplaySize
	}
	if cfg.SubscriberSize <= 0 {
		cfg.SubscriberSize = DefaultSubscriberSize
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	d := &Dispatcher{
		log:     cfg.Log.Named("dispatch"),
		subSize: cfg.SubscriberSize,
		queue:   make(chan stream.Notification, cfg.QueueSize),
		done:    make(chan struct{}),
		ring:    make([]stream.Notification, cfg.ReplaySize),
		subs:    make(map[*Subscription]struct{}),
	}
	go d.consume()
	return d
}

// Publish assigns the next index and enqueues n. It blocks while the queue
// is full.
func (d *Dispatcher) Publish(n stream.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.next++
	n.Index = d.next
	d.queue <- n
	metrics.RecordPublished(n.Name)
	return nil
}

func (d *Dispatcher) consume() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}

	d.fanMu.Lock()
	for sub := range d.subs {
		close(sub.ch)
		delete(d.subs, sub)
	}
	d.fanMu.Unlock()
}

func (d *Dispatcher) deliver(n stream.Notification) {
	d.fanMu.Lock()
	defer d.fanMu.Unlock()

	d.ring[d.head] = n
	d.head = (d.head + 1) % len(d.ring)
	if d.count < len(d.ring) {
		d.count++
	}

	for sub := range d.subs {
		select {
		case sub.ch <- n:
		default:
			sub.dropped.Add(1)
			metrics.RecordDrop()
			d.log.Warn("subscriber buffer full, notification dropped", map[string]any{
				"index":      n.Index,
				"name":       n.Name,
				"session_id": n.SessionID,
			})
		}
	}
}

// Subscribe registers a listener. Buffered notifications with an index
// greater than since are returned for replay; everything after them arrives
// on the subscription channel.
func (d *Dispatcher) Subscribe(since int64) (*Subscription, []stream.Notification) {
	ch := make(chan stream.Notification, d.subSize)
	sub := &Subscription{C: ch, ch: ch}

	d.fanMu.Lock()
	defer d.fanMu.Unlock()

	replay := d.replayUnlocked(since)
	select {
	case <-d.done:
		close(ch)
	default:
		d.subs[sub] = struct{}{}
	}
	return sub, replay
}

// Unsubscribe removes a listener and closes its channel. It is safe to call
// more than once.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	d.fanMu.Lock()
	defer d.fanMu.Unlock()
	if _, ok := d.subs[sub]; ok {
		delete(d.subs, sub)
		close(sub.ch)
	}
}

// Recent returns buffered notifications newer than since, oldest first.
func (d *Dispatcher) Recent(since int64) []stream.Notification {
	d.fanMu.Lock()
	defer d.fanMu.Unlock()
	return d.replayUnlocked(since)
}

func (d *Dispatcher) replayUnlocked(since int64) []stream.Notification {
	start := (d.head - d.count + len(d.ring)) % len(d.ring)
	var out []stream.Notification
	for i := range d.count {
		n := d.ring[(start+i)%len(d.ring)]
		if n.Index > since {
			out = append(out, n)
		}
	}
	return out
}

// Subscribers returns the number of registered listeners.
func (d *Dispatcher) Subscribers() int {
	d.fanMu.Lock()
	defer d.fanMu.Unlock()
	return len(d.subs)
}

// Close stops accepting notifications, delivers what is queued and closes
// every subscription.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
