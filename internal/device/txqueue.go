package device

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// txQueueCapacity bounds the transmit priority queue at 16 pending frames.
const txQueueCapacity = 16

// ErrTxQueueFull is returned by Enqueue when the transmit priority queue is
// already at capacity; the new frame is dropped.
var ErrTxQueueFull = errors.New("device: transmit queue full")

// frameHeap is a container/heap.Interface over wire.Frame, ordered so the
// frame with the *largest* FrameID code is the root — i.e. a max-heap,
// so a larger code means higher priority and gets transmitted first.
type frameHeap []wire.Frame

func (h frameHeap) Len() int { return len(h) }

func (h frameHeap) Less(i, j int) bool {
	return wire.FrameIDFor(h[i].Kind) > wire.FrameIDFor(h[j].Kind)
}

func (h frameHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frameHeap) Push(x any) { *h = append(*h, x.(wire.Frame)) }

func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TxQueue is the device's bounded transmit priority queue (SPEC_FULL.md
// §4.7): a 16-entry max-heap ordered by FrameID code, drained against a
// Transceiver's mailbox availability, with bumped-frame re-enqueue.
type TxQueue struct {
	mu  sync.Mutex
	h   frameHeap
	cap int
}

// NewTxQueue constructs an empty TxQueue with the given capacity.
func NewTxQueue(capacity int) *TxQueue {
	return &TxQueue{cap: capacity}
}

// Len reports the number of frames currently queued.
func (q *TxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Enqueue pushes f onto the queue, returning ErrTxQueueFull (and dropping f)
// if the queue is already at capacity.
func (q *TxQueue) Enqueue(f wire.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) >= q.cap {
		return ErrTxQueueFull
	}
	heap.Push(&q.h, f)
	return nil
}

// Drain submits queued frames to tx, encoding each with subID, until the
// queue empties or a mailbox is unavailable. A frame bumped out of hardware
// by a higher-priority submission is re-enqueued; if the queue has no room
// for it, it is dropped (mirroring the fixed-capacity hardware mailbox set
// it came from).
func (q *TxQueue) Drain(tx Transceiver, subID wire.SubId) {
	for {
		q.mu.Lock()
		if len(q.h) == 0 {
			q.mu.Unlock()
			return
		}
		f := heap.Pop(&q.h).(wire.Frame)
		q.mu.Unlock()

		raw := encodeRaw(f, subID)
		bumped, err := tx.TrySend(raw)
		if err != nil {
			if errors.Is(err, ErrMailboxFull) {
				q.mu.Lock()
				heap.Push(&q.h, f)
				q.mu.Unlock()
				return
			}
			// Any other transceiver error: the frame is lost, keep draining
			// the rest of the queue.
			continue
		}
		if bumped != nil {
			if bf, ok := decodeRaw(*bumped); ok {
				q.mu.Lock()
				if len(q.h) < q.cap {
					heap.Push(&q.h, bf)
				}
				q.mu.Unlock()
			}
		}
	}
}

func encodeRaw(f wire.Frame, subID wire.SubId) RawFrame {
	fid, out := wire.Encode(f)
	raw := RawFrame{
		ID:     wire.ComposeRawID(fid, subID),
		Remote: out.Remote,
	}
	if out.Remote {
		raw.DLC = out.DLC
	} else {
		raw.DLC = uint8(len(out.Data))
		copy(raw.Data[:], out.Data)
	}
	return raw
}

func decodeRaw(raw RawFrame) (wire.Frame, bool) {
	// The bumped frame's SubId bits are irrelevant here: only its FrameID
	// and payload matter for re-enqueue, and SplitRawID recovers the code
	// from the raw identifier regardless of the SubId portion.
	code, _ := wire.SplitRawID(raw.ID)
	kind, ok := wire.LookupFrameID(code)
	if !ok {
		return wire.Frame{}, false
	}
	var in wire.Input
	if raw.Remote {
		in = wire.RemoteInput(raw.DLC)
	} else {
		in = wire.DataInput(raw.Data[:raw.DLC])
	}
	f, err := wire.Decode(kind, in)
	if err != nil {
		return wire.Frame{}, false
	}
	return f, true
}
