// Package queue is a fixed-capacity in-memory FIFO transport, intended for
// single-process unit tests (§6.2). Its ring-buffer bookkeeping mirrors the
// teacher's internal/fifo.Fifo (writePos/readPos/occupied-via-modular-
// arithmetic), adapted from a byte ring to a frame ring since a frame, not
// a byte, is this transport's atomic unit.
package queue

import (
	"fmt"
	"sync"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/pkg/can"
)

// Capacity is the fixed number of frames the queue can hold (§6.2).
const Capacity = 32

func init() {
	can.Register("queue", func(_ string) (can.Transport, error) {
		return New(), nil
	})
}

// ErrFull wraps canexus.ErrTransport: the queue has no free slot.
var ErrFull = fmt.Errorf("queue: full: %w", canexus.ErrTransport)

// ErrEmpty wraps canexus.ErrTransport: the queue has nothing to deliver.
// The queue never blocks regardless of the requested timeout (§6.2), so
// this is reported as a transport condition rather than canexus.ErrTimeout.
var ErrEmpty = fmt.Errorf("queue: empty: %w", canexus.ErrTransport)

// Queue is a single FIFO. Two Queues wired to each other (via Pair) behave
// like a loopback link for tests.
type Queue struct {
	mu       sync.Mutex
	buffer   [Capacity]can.Frame
	readPos  int
	writePos int
	occupied int
	peer     *Queue
}

// New creates an unconnected, empty Queue.
func New() *Queue {
	return &Queue{}
}

// Pair wires two queues so that frames sent on one are received on the
// other, each direction independently buffered.
func Pair() (a *Queue, b *Queue) {
	a, b = New(), New()
	a.peer, b.peer = b, a
	return a, b
}

func (q *Queue) Init() error { return nil }

func (q *Queue) Close() error { return nil }

// Send enqueues frame on the peer's inbound ring (or, if unpaired, on this
// queue's own ring, making it a simple local loopback).
func (q *Queue) Send(frame can.Frame) error {
	target := q.peer
	if target == nil {
		target = q
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.occupied == Capacity {
		return ErrFull
	}
	target.buffer[target.writePos] = frame
	target.writePos = (target.writePos + 1) % Capacity
	target.occupied++
	return nil
}

// Receive pops the oldest buffered frame. timeoutMs is ignored: the queue
// never blocks, it fails immediately when empty (§6.2).
func (q *Queue) Receive(timeoutMs int) (can.Frame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.occupied == 0 {
		return can.Frame{}, ErrEmpty
	}
	frame := q.buffer[q.readPos]
	q.readPos = (q.readPos + 1) % Capacity
	q.occupied--
	return frame, nil
}

// Len reports the number of frames currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.occupied
}
