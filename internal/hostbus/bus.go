// Package hostbus owns the host's CAN transport and fans decoded frames
// out to subscribers, using a client registry and broadcast-with-backpressure
// policy collapsed to a single behavior: a subscriber that falls more than
// RingCapacity frames behind is force-unsubscribed (its channel is closed),
// so a subscriber only has to handle "keep reading" or "resubscribe," never
// a silently dropped frame it was supposed to see.
package hostbus

import (
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/metrics"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// RingCapacity is the per-subscriber buffered channel size.
const RingCapacity = 1000

// Received pairs a decoded frame with the SubId it was addressed to or from.
type Received struct {
	Frame wire.Frame
	Sub   wire.SubId
}

// Subscriber is a handle returned by Bus.Subscribe. Frames arrive on In
// until either the caller calls Unsubscribe or the bus force-closes In
// because the caller fell too far behind (Lagged).
type Subscriber struct {
	In     chan Received
	Lagged chan struct{}

	bus       *Bus
	closeOnce sync.Once
}

// Unsubscribe removes the subscriber from the bus; idempotent.
func (s *Subscriber) Unsubscribe() { s.bus.remove(s) }

func (s *Subscriber) forceClose() {
	s.closeOnce.Do(func() {
		close(s.In)
		close(s.Lagged)
	})
}

// Bus fans out decoded frames to every current subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// New creates an empty Bus.
func New() *Bus { return &Bus{subs: make(map[*Subscriber]struct{})} }

// Subscribe registers a new Subscriber.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		In:     make(chan Received, RingCapacity),
		Lagged: make(chan struct{}),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	metrics.SetBusSubscribers(b.Count())
	return s
}

func (b *Bus) remove(s *Subscriber) {
	b.mu.Lock()
	_, existed := b.subs[s]
	delete(b.subs, s)
	b.mu.Unlock()
	if existed {
		metrics.SetBusSubscribers(b.Count())
	}
}

// Count reports the number of currently subscribed listeners.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Broadcast delivers r to every subscriber. A subscriber whose In channel
// is full is force-unsubscribed and its Lagged channel closed, signalling
// it must resubscribe to keep seeing new frames.
func (b *Bus) Broadcast(r Received) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.In <- r:
		default:
			logging.L().Warn("subscriber lagged, force-unsubscribing")
			metrics.IncBusLagged()
			s.forceClose()
			b.remove(s)
		}
	}
}
