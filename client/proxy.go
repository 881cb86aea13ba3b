// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package client

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// proxyState is stored in an objmap.Object's opaque Data field for every
// client-side object: the typed descriptor, the event dispatcher
// registered by generated bindings, the queue it currently belongs to, and
// application user-data (§3 Object: user-data, owning-queue, dispatcher).
type proxyState struct {
	conn *Connection
	desc *protocol.InterfaceDesc

	mu       sync.Mutex
	queue    *EventQueue
	dispatch func(opcode uint16, args []wire.Value) error
	userData interface{}
}

// Proxy is the opaque handle applications and generated bindings hold for
// a client-side object (§GLOSSARY Proxy). Equality compares the
// connection, id, and generation, so a handle spanning a delete_id
// compares unequal to anything that reuses its id afterward (§9).
type Proxy struct {
	conn       *Connection
	id         uint32
	generation uint32
	state      *proxyState
}

// ID returns the object's protocol id.
func (p *Proxy) ID() uint32 { return p.id }

// Conn returns the proxy's owning connection, letting generated bindings
// reach Connection.LookupProxy without needing package-internal access.
func (p *Proxy) Conn() *Connection { return p.conn }

// Interface returns the object's interface name.
func (p *Proxy) Interface() string { return p.state.desc.Name }

// Version returns the negotiated version this proxy was created at.
func (p *Proxy) Version() uint32 {
	obj, ok := p.conn.findLocked(p.id)
	if !ok {
		return 0
	}
	return obj.Version
}

// Alive reports whether the object this handle refers to is still the one
// live at this id (i.e. neither destroyed locally nor reclaimed via
// delete_id and reused for something else) (§9 Object identity).
func (p *Proxy) Alive() bool {
	obj, ok := p.conn.findLocked(p.id)
	if !ok || obj.Generation != p.generation {
		return false
	}
	return !obj.Destroyed
}

// SetUserData / UserData store and retrieve opaque application state on
// the object. The core never inspects it (§3 Object: user-data).
func (p *Proxy) SetUserData(v interface{}) {
	p.state.mu.Lock()
	p.state.userData = v
	p.state.mu.Unlock()
}

func (p *Proxy) UserData() interface{} {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.userData
}

// SetQueue reassigns the proxy (and any future children it creates) to a
// different event queue, atomically with respect to incoming messages
// (§4.F Queue reassignment, §9).
func (p *Proxy) SetQueue(q *EventQueue) error {
	guard, err := p.conn.PrepareRead()
	if err == nil {
		defer guard.Cancel()
	} else if err != errAnotherQueuePending {
		return err
	}

	p.state.mu.Lock()
	old := p.state.queue
	p.state.queue = q
	p.state.mu.Unlock()

	if old != nil && old != q {
		old.mu.Lock()
		var kept []queuedEvent
		for _, ev := range old.fifo {
			if ev.obj == p.state {
				q.push(ev)
			} else {
				kept = append(kept, ev)
			}
		}
		old.fifo = kept
		old.mu.Unlock()
	}
	return nil
}

// destroy marks the proxy's object destroyed in the connection's map. It
// sends no request and does not remove the id from the map.
func (p *Proxy) destroy() {
	p.conn.mu.Lock()
	if obj, ok := p.conn.objects.Find(p.id); ok {
		obj.Destroyed = true
	}
	p.conn.mu.Unlock()
}

// SendRequest packs and sends a request, allocating a new client-side
// child object first if the request's descriptor carries a new_id
// argument. newChildIface is the concrete interface to construct for a
// generic (wl_registry.bind-style) new_id; it is ignored otherwise.
func (p *Proxy) SendRequest(opcode uint16, args []wire.Value, newChildIface *protocol.InterfaceDesc, newChildVersion uint32) (*Proxy, error) {
	if !p.Alive() {
		return nil, protocol.ErrInvalidID
	}
	desc, ok := p.state.desc.RequestByOpcode(opcode)
	if !ok {
		return nil, protocol.ErrInvalidID
	}
	if v := p.Version(); desc.Since > 0 && v < desc.Since {
		return nil, errors.Errorf("client: %s.%s requires version %d, object is version %d",
			p.state.desc.Name, desc.Name, desc.Since, v)
	}

	var child *Proxy
	argsOut := args
	if idx := desc.NewIDArgIndex(); idx >= 0 {
		childDesc := newChildIface
		if desc.NewIDInterface != "" {
			iface, ok := p.conn.descriptorFor(desc.NewIDInterface)
			if !ok {
				return nil, protocol.ErrInvalidID
			}
			childDesc = iface
		}
		if childDesc == nil {
			return nil, errors.Errorf("client: %s.%s needs an explicit child interface for its generic new_id",
				p.state.desc.Name, desc.Name)
		}
		var err error
		child, err = p.conn.newChild(childDesc, newChildVersion, p.state.queue)
		if err != nil {
			return nil, err
		}
		argsOut = append([]wire.Value(nil), args...)
		argsOut[idx] = wire.NewIDValue(child.id)
		if desc.Signature[idx].GenericNewID {
			argsOut[idx].NewIDInterface = childDesc.Name
			argsOut[idx].NewIDVersion = newChildVersion
		}
	}

	data, fds, err := wire.Encode(p.id, opcode, argsOut, desc.Signature)
	if err != nil {
		return nil, err
	}
	p.conn.writeMu.Lock()
	p.conn.writer.Append(data, fds)
	p.conn.writeMu.Unlock()

	p.conn.tracer.Message("->", p.id, p.state.desc.Name, desc.Name, argsOut)

	if desc.Destructor {
		p.destroy()
	}
	return child, nil
}
