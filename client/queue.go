// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package client

import (
	"sync"
	"time"

	"github.com/waylandgo/wlcore/wire"
)

// queuedEvent is one decoded event waiting to be dispatched, already
// resolved to its owning object (§3 Event queue, §4.F).
type queuedEvent struct {
	obj *proxyState
	msg wire.Message
}

// EventQueue is an independent FIFO bucket of decoded events. Every proxy
// belongs to exactly one queue at a time; dispatching one queue never
// touches events destined for another (§4.F, §8 property 7).
type EventQueue struct {
	conn *Connection

	mu   sync.Mutex
	fifo []queuedEvent
}

// NewQueue creates a new event queue on conn. The connection's default
// queue (returned by Connection.DefaultQueue) is created the same way.
func (c *Connection) NewQueue() *EventQueue {
	q := &EventQueue{conn: c}
	c.mu.Lock()
	c.queues = append(c.queues, q)
	c.mu.Unlock()
	return q
}

func (q *EventQueue) push(ev queuedEvent) {
	q.mu.Lock()
	q.fifo = append(q.fifo, ev)
	q.mu.Unlock()
}

// pending reports whether q has any undispatched events, used by
// PrepareRead to implement §4.C's "fails if another queue already has
// events buffered".
func (q *EventQueue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo) > 0
}

func (q *EventQueue) pop() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return queuedEvent{}, false
	}
	ev := q.fifo[0]
	q.fifo = q.fifo[1:]
	return ev, true
}

// DispatchPending pops and invokes the typed callback for every event
// currently buffered on q, returning the count dispatched. It never
// blocks and never reads from the socket (§4.F).
func (q *EventQueue) DispatchPending() (int, error) {
	n := 0
	for {
		ev, ok := q.pop()
		if !ok {
			return n, nil
		}
		if err := q.conn.invoke(ev); err != nil {
			return n, err
		}
		q.conn.drainDestructors()
		n++
	}
}

// BlockingDispatch attempts PrepareRead; if granted, waits for the socket
// to become readable (up to timeout, or indefinitely if timeout < 0),
// reads, then dispatches q. If PrepareRead is refused because another
// queue already has events buffered, it skips straight to dispatching q
// (§4.F).
func (q *EventQueue) BlockingDispatch(timeout time.Duration) (int, error) {
	if err := q.conn.latched(); err != nil {
		return 0, err
	}
	guard, err := q.conn.PrepareRead()
	if err != nil {
		if err == errAnotherQueuePending {
			return q.DispatchPending()
		}
		return 0, err
	}
	if err := q.conn.BlockingFlush(); err != nil {
		guard.Cancel()
		return 0, err
	}
	waitErr := q.conn.sock.WaitReadable(timeout)
	if waitErr == wire.ErrWouldBlock {
		guard.Cancel()
		return 0, nil // timed out: zero dispatched, no error (§5 Cancellation)
	}
	if waitErr != nil {
		guard.Cancel()
		return 0, waitErr
	}
	if err := guard.Read(); err != nil {
		return 0, err
	}
	return q.DispatchPending()
}

// Roundtrip sends a wl_display.sync bound to q and blocks until its
// callback fires, implementing §4.F's roundtrip.
func (q *EventQueue) Roundtrip() error {
	done := make(chan struct{})
	cb, err := q.conn.display.sync(q, func(uint32) { close(done) })
	if err != nil {
		return err
	}
	defer cb.release()
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if _, err := q.BlockingDispatch(-1); err != nil {
			return err
		}
	}
}
