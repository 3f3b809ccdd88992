package ingress

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/domain"
)

// subscriberQueueLen bounds how far a slow subscriber may fall behind
// before old events are discarded.
const subscriberQueueLen = 100

// Handler consumes one parsed telemetry event. Handlers run on their
// subscriber's own goroutine and never block the ingress socket.
type Handler func(event domain.Event)

type subscriber struct {
	name string
	ch   chan domain.Event
	done chan struct{}
}

// Broker fans parsed events out to any number of subscribers. Each
// subscriber owns a bounded queue drained by a dedicated goroutine;
// when the queue overflows the oldest queued event is dropped.
// Delivery is best effort, but per-source ordering is preserved for
// whatever is delivered.
type Broker struct {
	mu   sync.RWMutex
	subs []*subscriber
	wg   sync.WaitGroup
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{}
}

// Subscribe registers a handler under a name used in drop logging.
// Must be called before the first Publish of interest; subscriptions
// are not removable.
func (b *Broker) Subscribe(name string, handler Handler) {
	sub := &subscriber{
		name: name,
		ch:   make(chan domain.Event, subscriberQueueLen),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-sub.done:
				return
			case event := <-sub.ch:
				handler(event)
			}
		}
	}()
}

// Publish enqueues the event for every subscriber. A full queue sheds
// its oldest event to make room.
func (b *Broker) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Queue full: drop the oldest event, then retry once. The
		// second send can only fail if the drain goroutine raced us,
		// in which case the queue has room anyway.
		select {
		case dropped := <-sub.ch:
			log.Debug().Str("subscriber", sub.name).Str("server", dropped.Server).Msg("Telemetry queue full, dropping oldest event")
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close stops all subscriber goroutines. Queued events are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.done)
	}
	b.subs = nil
	b.mu.Unlock()
	b.wg.Wait()
}
