// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package server implements the server half of the Wayland object/message
// engine (§4.E): one Client per accepted connection, each running a
// synchronous request-dispatch loop over its own object map, plus a
// Registry that tracks globals and broadcasts their advertisement across
// every connected client with per-client visibility bookkeeping.
package server

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/waylandgo/wlcore/internal/trace"
	"github.com/waylandgo/wlcore/objmap"
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// resourceState is the server-side analog of the client package's
// proxyState: it lives in an objmap.Object's Data field and carries the
// interface descriptor and typed dispatcher a Global's bind callback
// installs (§4.E).
type resourceState struct {
	client *Client
	mu     sync.Mutex
	desc   *protocol.InterfaceDesc
	dispatch func(opcode uint16, args []wire.Value) error
	onDestroy func()
	destroyed bool
	userData interface{}
}

// notifyDestroy invokes state's destroy callback exactly once, regardless
// of which of the several destruction paths (destructor request/event,
// delete_id reclamation, whole-client Kill) triggers it.
func (s *resourceState) notifyDestroy() {
	s.mu.Lock()
	f := s.onDestroy
	already := s.destroyed
	s.destroyed = true
	s.mu.Unlock()
	if !already && f != nil {
		f()
	}
}

// Client is one connected client's half of a server connection: its
// socket, object map (client-allocated ids plus the server-allocated ids
// NewServerResource creates -- §3 Object map), and
// the registries it has created (§4.E wl_registry visibility).
type Client struct {
	server *Server
	sock   *wire.Socket
	reader *wire.Reader
	writer *wire.Writer

	mu      sync.Mutex // guards objects, registries, creationOrder
	objects *objmap.Map
	registries []*registryResource
	creationOrder []uint32

	writeMu sync.Mutex

	latchMu  sync.Mutex
	latched_ error

	descriptors map[string]*protocol.InterfaceDesc

	display *displayResource
	tracer  *trace.Tracer

	UserData interface{}
}

// displayResource wraps the bootstrapped wl_display resource at id 1,
// the server-side counterpart of the client package's displayHandle.
type displayResource struct {
	*Resource
}

func newClient(s *Server, sock *wire.Socket) *Client {
	c := &Client{
		server:      s,
		sock:        sock,
		reader:      wire.NewReader(sock),
		writer:      wire.NewWriter(sock),
		objects:     objmap.New(),
		descriptors: map[string]*protocol.InterfaceDesc{},
		tracer:      trace.FromEnv(trace.Server),
	}
	c.RegisterInterface(protocol.Display)
	c.RegisterInterface(protocol.Registry)
	c.RegisterInterface(protocol.Callback)

	displayObj := &objmap.Object{Interface: protocol.Display.Name, Version: 1}
	if err := c.objects.InsertAt(1, displayObj); err != nil {
		panic("server: failed to bootstrap wl_display at id 1: " + err.Error())
	}
	state := &resourceState{client: c, desc: protocol.Display}
	displayObj.Data = state
	c.display = &displayResource{Resource: &Resource{client: c, id: 1, state: state}}
	c.creationOrder = append(c.creationOrder, 1)
	return c
}

// RegisterInterface makes desc available so requests carrying a fixed
// new_id can resolve their child resource's descriptor (§4.E, mirrors
// client.Connection.RegisterInterface).
func (c *Client) RegisterInterface(desc *protocol.InterfaceDesc) {
	c.mu.Lock()
	c.descriptors[desc.Name] = desc
	c.mu.Unlock()
}

// descriptorFor resolves name against this client's own table first, then
// falls back to the process-wide table generated bindings populate
// (protocol.RegisterGlobal), mirroring client.Connection.descriptorFor.
func (c *Client) descriptorFor(name string) (*protocol.InterfaceDesc, bool) {
	c.mu.Lock()
	d, ok := c.descriptors[name]
	c.mu.Unlock()
	if ok {
		return d, true
	}
	return protocol.LookupGlobal(name)
}

func (c *Client) latched() error {
	c.latchMu.Lock()
	defer c.latchMu.Unlock()
	return c.latched_
}

func (c *Client) latch(err error) error {
	c.latchMu.Lock()
	defer c.latchMu.Unlock()
	if c.latched_ == nil {
		c.latched_ = err
	}
	return c.latched_
}

// Kill posts a protocol error to the client (if not already latched with
// one) and closes its connection, destroying every live resource in
// reverse creation order first (§5 Cancellation, §9 destructor ordering).
func (c *Client) Kill(code uint32, objID uint32, iface, message string) {
	c.postError(code, objID, iface, message)
	c.destroyAll()
	c.writeMu.Lock()
	_ = c.writer.BlockingFlush()
	c.writeMu.Unlock()
	_ = c.sock.Close()
}

func (c *Client) destroyAll() {
	c.mu.Lock()
	order := append([]uint32(nil), c.creationOrder...)
	c.creationOrder = nil
	c.mu.Unlock()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		c.mu.Lock()
		obj, ok := c.objects.Find(id)
		if ok {
			obj.Destroyed = true
			c.objects.Remove(id)
		}
		c.mu.Unlock()
		if ok {
			if state, ok := obj.Data.(*resourceState); ok {
				state.notifyDestroy()
			}
		}
	}
}

func (c *Client) postError(code uint32, objID uint32, iface, message string) {
	pe := &protocol.ProtocolError{Code: code, ObjectID: objID, ObjectInterface: iface, Message: message}
	c.latch(pe)
	c.sendEvent(1, 0, []wire.Value{wire.ObjectValue(objID), wire.UintValue(code), wire.StringValue(message)})
}

// sendEvent encodes and appends an event to the client's outbound buffer
// and flushes it, blocking if necessary (§4.E synchronous dispatch: a
// server connection handles one client at a time, so events are written
// eagerly rather than queued for a separate writer goroutine).
func (c *Client) sendEvent(sender uint32, opcode uint16, args []wire.Value) error {
	state, iface, ok := c.resourceDesc(sender)
	if !ok {
		return errors.Errorf("server: sendEvent on unknown object %d", sender)
	}
	desc, ok := state.desc.EventByOpcode(opcode)
	if !ok {
		return errors.Errorf("server: sendEvent: %s has no event opcode %d", iface, opcode)
	}
	data, fds, err := wire.Encode(sender, opcode, args, desc.Signature)
	if err != nil {
		return err
	}
	c.tracer.Message("->", sender, iface, desc.Name, args)
	c.writeMu.Lock()
	c.writer.Append(data, fds)
	err = c.writer.BlockingFlush()
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	if desc.Destructor {
		c.destroyAndNotify(sender)
	}
	return nil
}

// destroyAndNotify removes id from the object map and emits
// wl_display.delete_id, the server-side half of §4.E's "destructor
// semantics on events": once a destructor event has gone out, the id is
// immediately free for the client to reuse.
func (c *Client) destroyAndNotify(id uint32) {
	c.mu.Lock()
	obj, found := c.objects.Find(id)
	if found {
		obj.Destroyed = true
	}
	c.objects.Remove(id)
	c.mu.Unlock()
	if found {
		if state, ok := obj.Data.(*resourceState); ok {
			state.notifyDestroy()
		}
	}
	data, _, _ := wire.Encode(1, 1, []wire.Value{wire.UintValue(id)}, protocol.Display.Events[1].Signature)
	c.writeMu.Lock()
	c.writer.Append(data, nil)
	_ = c.writer.BlockingFlush()
	c.writeMu.Unlock()
}

// objectVersion returns id's negotiated version, or 0 if id is absent.
func (c *Client) objectVersion(id uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects.Find(id)
	if !ok {
		return 0
	}
	return obj.Version
}

func (c *Client) resourceDesc(id uint32) (*resourceState, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects.Find(id)
	if !ok {
		return nil, "", false
	}
	state, ok := obj.Data.(*resourceState)
	if !ok {
		return nil, "", false
	}
	return state, obj.Interface, true
}
