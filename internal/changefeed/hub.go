package changefeed

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beesaferoot/buildops/internal/metrics"
)

var ErrClosed = errors.New("change feed closed")

const (
	broadcastBuffer  = 256
	subscriberBuffer = 64
)

// Subscription receives events until it is closed by Unsubscribe, by the hub
// shutting down, or by falling behind.
type Subscription struct {
	ID     string
	C      <-chan Event
	send   chan Event
	filter map[string]bool
}

func (s *Subscription) wants(e Event) bool {
	return len(s.filter) == 0 || s.filter[e.Record()]
}

// Hub fans events out to subscribers. A subscriber whose buffer is full is
// dropped rather than blocking the publisher.
type Hub struct {
	log        *zap.Logger
	broadcast  chan Event
	register   chan *Subscription
	unregister chan *Subscription
	done       chan struct{}
	closeOnce  sync.Once

	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:         log.Named("changefeed"),
		broadcast:   make(chan Event, broadcastBuffer),
		register:    make(chan *Subscription),
		unregister:  make(chan *Subscription),
		done:        make(chan struct{}),
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Run delivers events until ctx is cancelled, then closes every
// subscription.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = struct{}{}
			n := len(h.subscribers)
			h.mu.Unlock()
			metrics.WebsocketSubscribers.Set(float64(n))
			h.log.Debug("subscriber registered", zap.String("subscriber", sub.ID), zap.Int("subscribers", n))
		case sub := <-h.unregister:
			h.remove(sub)
		case e := <-h.broadcast:
			h.deliver(e)
		}
	}
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	var slow []*Subscription
	for sub := range h.subscribers {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.send <- e:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.log.Warn("dropping slow subscriber", zap.String("subscriber", sub.ID))
		h.remove(sub)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	n := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		metrics.WebsocketSubscribers.Set(float64(n))
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
	h.mu.Lock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()
	metrics.WebsocketSubscribers.Set(0)
}

// Publish queues e for delivery. When the hub is saturated or stopped the
// event is dropped.
func (h *Hub) Publish(e Event) {
	select {
	case <-h.done:
		metrics.ChangeEvents.WithLabelValues("dropped").Inc()
		return
	default:
	}
	select {
	case h.broadcast <- e:
		metrics.ChangeEvents.WithLabelValues("published").Inc()
	default:
		metrics.ChangeEvents.WithLabelValues("dropped").Inc()
		h.log.Warn("broadcast buffer full, dropping event", zap.String("type", e.Type), zap.Uint("id", e.ID))
	}
}

// Subscribe registers a subscriber for events of the given record types, or
// all events when none are given.
func (h *Hub) Subscribe(ctx context.Context, records ...string) (*Subscription, error) {
	send := make(chan Event, subscriberBuffer)
	sub := &Subscription{ID: uuid.NewString(), C: send, send: send}
	if len(records) > 0 {
		sub.filter = make(map[string]bool, len(records))
		for _, r := range records {
			sub.filter[r] = true
		}
	}

	select {
	case h.register <- sub:
		return sub, nil
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes sub. It is safe to call after the hub dropped it.
func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
