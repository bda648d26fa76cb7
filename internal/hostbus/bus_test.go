package hostbus

import (
	"testing"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	b.Broadcast(Received{Frame: wire.NewSerialRequest(), Sub: 0})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case r := <-s.In:
			if r.Frame.Kind != wire.KindSerial {
				t.Fatalf("got kind %v, want KindSerial", r.Frame.Kind)
			}
		default:
			t.Fatalf("subscriber did not receive the broadcast frame")
		}
	}
}

func TestBroadcast_LaggedSubscriberIsForceUnsubscribed(t *testing.T) {
	b := New()
	s := b.Subscribe()

	for i := 0; i < RingCapacity+10; i++ {
		b.Broadcast(Received{Frame: wire.NewUploadFinished()})
	}

	select {
	case _, ok := <-s.Lagged:
		if ok {
			t.Fatalf("Lagged channel should be closed, not sent on")
		}
	default:
		t.Fatalf("expected Lagged to be closed after exceeding ring capacity")
	}
	if b.Count() != 0 {
		t.Fatalf("lagged subscriber should have been removed, count = %d", b.Count())
	}
}

func TestSubscribe_CountTracksLifecycle(t *testing.T) {
	b := New()
	if b.Count() != 0 {
		t.Fatalf("new bus should have 0 subscribers")
	}
	s := b.Subscribe()
	if b.Count() != 1 {
		t.Fatalf("count = %d, want 1", b.Count())
	}
	s.Unsubscribe()
	if b.Count() != 0 {
		t.Fatalf("count = %d, want 0 after unsubscribe", b.Count())
	}
}
