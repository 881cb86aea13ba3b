// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package client

import (
	"time"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// ReadGuard is the exclusive right to read from the socket, obtained from
// Connection.PrepareRead (§4.C).
type ReadGuard struct {
	conn *Connection
}

// Read performs the actual recv + decode + route pass, releasing the
// guard when it returns.
func (g *ReadGuard) Read() error {
	defer g.conn.releaseReadGuard()
	return g.conn.doRead()
}

// Cancel releases the guard without reading, letting another thread read
// instead (§4.F Cancellation and timeouts).
func (g *ReadGuard) Cancel() {
	g.conn.releaseReadGuard()
}

// PrepareRead grants the exclusive right to read from the socket. It
// fails with errAnotherQueuePending if any queue on this connection
// already has buffered, undispatched events -- the caller should dispatch
// instead of reading (§4.C).
func (c *Connection) PrepareRead() (*ReadGuard, error) {
	if err := c.latched(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readInFlight {
		return nil, errors.New("client: a read is already in flight")
	}
	for _, q := range c.queues {
		if q.pending() {
			return nil, errAnotherQueuePending
		}
	}
	c.readInFlight = true
	return &ReadGuard{conn: c}, nil
}

func (c *Connection) releaseReadGuard() {
	c.mu.Lock()
	c.readInFlight = false
	c.mu.Unlock()
}

// lookupSignature resolves the wire signature for an inbound event given
// its sender and opcode, consulting the object map (§4.A SignatureLookup).
func (c *Connection) lookupSignature(sender uint32, opcode uint16) (wire.Signature, bool) {
	c.mu.Lock()
	obj, ok := c.objects.Find(sender)
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	state := obj.Data.(*proxyState)
	desc, ok := state.desc.EventByOpcode(opcode)
	if !ok {
		return nil, false
	}
	return desc.Signature, true
}

func (c *Connection) doRead() error {
	n, err := c.reader.ReadMessages(c.lookupSignature, c.handleIncoming)
	if err != nil && err != wire.ErrWouldBlock {
		c.latch(err)
		return err
	}
	_ = n
	return nil
}

// handleIncoming implements §4.D's dispatch core: resolve the sender,
// close fds and drop the message if its object is already destroyed,
// construct any child object the message announces, and enqueue the
// message onto the sender's owning queue. wl_display gets the two special
// cases (error, delete_id) described in §4.D.
func (c *Connection) handleIncoming(msg wire.Message) error {
	c.mu.Lock()
	obj, ok := c.objects.Find(msg.Sender)
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(protocol.ErrInvalidID, "event for unknown object %d", msg.Sender)
	}
	state := obj.Data.(*proxyState)

	if obj.Destroyed {
		closeMessageFds(msg)
		return nil
	}

	if msg.Sender == 1 { // wl_display
		switch msg.Opcode {
		case 0: // error
			pe := &protocol.ProtocolError{
				Code:            msg.Args[1].Uint,
				ObjectID:        msg.Args[0].Object,
				ObjectInterface: c.interfaceNameOf(msg.Args[0].Object),
				Message:         msg.Args[2].Str,
			}
			return c.latch(pe)
		case 1: // delete_id
			id := msg.Args[0].Uint
			c.mu.Lock()
			if o, ok := c.objects.Find(id); ok {
				o.Destroyed = true
			}
			c.objects.Remove(id)
			c.mu.Unlock()
			return nil
		}
	}

	desc, ok := state.desc.EventByOpcode(msg.Opcode)
	if !ok {
		return errors.Wrapf(protocol.ErrInvalidID, "unknown event opcode %d on %s", msg.Opcode, state.desc.Name)
	}

	if idx := desc.NewIDArgIndex(); idx >= 0 && desc.NewIDInterface != "" {
		childID := msg.Args[idx].NewID
		childDesc, ok := c.descriptorFor(desc.NewIDInterface)
		if !ok {
			return errors.Errorf("event %s.%s: unknown child interface %q", state.desc.Name, desc.Name, desc.NewIDInterface)
		}
		childState := &proxyState{conn: c, desc: childDesc, queue: state.queue}
		childObj := &objmap.Object{Interface: childDesc.Name, Version: obj.Version, Data: childState}
		c.mu.Lock()
		err := c.objects.InsertAt(childID, childObj)
		c.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "event %s.%s: colliding new_id %d", state.desc.Name, desc.Name, childID)
		}
	}

	state.mu.Lock()
	q := state.queue
	state.mu.Unlock()
	q.push(queuedEvent{obj: state, msg: msg})
	return nil
}

func (c *Connection) interfaceNameOf(id uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.objects.Find(id); ok {
		return o.Interface
	}
	return ""
}

func closeMessageFds(msg wire.Message) {
	for _, a := range msg.Args {
		if a.Kind == wire.KindFD {
			_ = wire.CloseFD(a.Fd)
		}
	}
}

// invoke calls the typed callback registered for ev's object, tracing it
// first if WAYLAND_DEBUG is set (§4.F dispatch_pending, §9 Destructors and
// reentrancy: the callback may itself send requests, which only append to
// the outbound buffer and never recurse into dispatch).
func (c *Connection) invoke(ev queuedEvent) error {
	state := ev.obj
	desc, _ := state.desc.EventByOpcode(ev.msg.Opcode)
	c.tracer.Message("<-", ev.msg.Sender, state.desc.Name, desc.Name, ev.msg.Args)

	state.mu.Lock()
	dispatch := state.dispatch
	state.mu.Unlock()

	var dispatchErr error
	if dispatch != nil {
		dispatchErr = dispatch(ev.msg.Opcode, ev.msg.Args)
	}

	if desc.Destructor {
		sender := ev.msg.Sender
		c.queueDestructor(func() {
			c.mu.Lock()
			if o, ok := c.objects.Find(sender); ok {
				o.Destroyed = true
			}
			c.objects.Remove(sender)
			c.mu.Unlock()
		})
	}
	return dispatchErr
}

// SetDispatcher registers the typed callback a generated binding (or a
// hand-written core wrapper) invokes for every event received on p.
func (p *Proxy) SetDispatcher(f func(opcode uint16, args []wire.Value) error) {
	p.state.mu.Lock()
	p.state.dispatch = f
	p.state.mu.Unlock()
}

// BlockingDispatchTimeout is the default timeout BlockingDispatch
// convenience wrappers use when none is given.
const BlockingDispatchTimeout = 30 * time.Second
