// Copyright 2024 The wlcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package client

import (
	"github.com/waylandgo/wlcore/protocol"
	"github.com/waylandgo/wlcore/wire"
)

// displayHandle wraps the bootstrap wl_display proxy with its two
// requests (§4.D, §6 Bootstrap objects). Generated bindings for real
// protocols follow exactly this shape; wl_display, wl_registry, and
// wl_callback are hand-written here because the dispatch core treats them
// specially (§4.D, §4.E).
type displayHandle struct {
	*Proxy
}

// sync sends wl_display.sync bound to q, invoking onDone with the event's
// serial once the server replies. The reply is delivered on q regardless
// of which queue wl_display itself currently belongs to (§4.F Roundtrip
// must work against any queue, not just the default one).
func (d *displayHandle) sync(q *EventQueue, onDone func(serial uint32)) (*callbackHandle, error) {
	child, err := d.SendRequest(0, []wire.Value{wire.NewIDValue(0)}, protocol.Callback, 1)
	if err != nil {
		return nil, err
	}
	if err := child.SetQueue(q); err != nil {
		return nil, err
	}
	cb := &callbackHandle{Proxy: child}
	cb.SetDispatcher(func(opcode uint16, args []wire.Value) error {
		if opcode == 0 {
			onDone(args[0].Uint)
		}
		return nil
	})
	return cb, nil
}

// GetRegistry sends wl_display.get_registry bound to q and returns the
// registry handle; its global/global_remove events will start arriving on
// q as soon as it is dispatched (§8 scenario S2).
func (d *displayHandle) GetRegistry(q *EventQueue) (*RegistryHandle, error) {
	child, err := d.SendRequest(1, []wire.Value{wire.NewIDValue(0)}, protocol.Registry, 1)
	if err != nil {
		return nil, err
	}
	if err := child.SetQueue(q); err != nil {
		return nil, err
	}
	return &RegistryHandle{Proxy: child}, nil
}

// GetRegistry is the public entry point applications use to bootstrap
// global enumeration on the connection's default queue.
func (c *Connection) GetRegistry() (*RegistryHandle, error) {
	return c.display.GetRegistry(c.DefaultQueue())
}

// Sync is the public entry point applications use for an ad-hoc
// roundtrip-style callback on the connection's default queue.
func (c *Connection) Sync(onDone func(serial uint32)) (*callbackHandle, error) {
	return c.display.sync(c.DefaultQueue(), onDone)
}

// callbackHandle wraps a wl_callback proxy (the result of sync or of a
// bind-adjacent acknowledgement event in generated bindings).
type callbackHandle struct {
	*Proxy
}

func (cb *callbackHandle) release() {
	// wl_callback.done is a destructor event (protocol.Callback); the
	// dispatch core already reclaims the id once it fires. Nothing else
	// to release here, but generated RAII-style wrappers call this from
	// a defer regardless of whether done ever arrived.
}

// Global is one entry decoded from a wl_registry.global event.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// RegistryHandle wraps a wl_registry proxy: global/global_remove event
// delivery plus the Bind request (§4.E wl_registry.bind, §8 S2/S3).
type RegistryHandle struct {
	*Proxy
}

// Listen registers callbacks for the registry's two events, global and
// global_remove. Call before the next dispatch so no globals are missed
// (§8 S2).
func (r *RegistryHandle) Listen(onGlobal func(Global), onGlobalRemove func(name uint32)) {
	r.SetDispatcher(func(opcode uint16, args []wire.Value) error {
		switch opcode {
		case 0:
			if onGlobal != nil {
				onGlobal(Global{Name: args[0].Uint, Interface: args[1].Str, Version: args[2].Uint})
			}
		case 1:
			if onGlobalRemove != nil {
				onGlobalRemove(args[0].Uint)
			}
		}
		return nil
	})
}

// Bind sends wl_registry.bind{name, iface.Name, version, new_id}, creating
// and returning a proxy of the requested interface and version (§4.H,
// §9 generic new-id).
func (r *RegistryHandle) Bind(name uint32, iface *protocol.InterfaceDesc, version uint32) (*Proxy, error) {
	r.conn.RegisterInterface(iface)
	return r.SendRequest(0, []wire.Value{wire.UintValue(name), wire.NewIDValue(0)}, iface, version)
}
